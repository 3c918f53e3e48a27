package tenant

import "errors"

var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrNoTenantInContext = errors.New("no tenant in context")
	ErrInactiveTenant    = errors.New("tenant is inactive")
)
