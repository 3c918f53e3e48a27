package sms

import "errors"

var (
	ErrInvalidConfig   = errors.New("sms: invalid config")
	ErrInvalidNumber   = errors.New("sms: invalid phone number")
	ErrInvalidMessage  = errors.New("sms: invalid message")
	ErrSendFailed      = errors.New("sms: send failed")
	ErrUnknownProvider = errors.New("sms: unknown provider")
)
