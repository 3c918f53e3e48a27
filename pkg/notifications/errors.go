package notifications

import (
	"errors"
	"fmt"
)

var (
	// ErrNotificationNotFound is returned when the notification does not exist
	// or belongs to another tenant or user.
	ErrNotificationNotFound     = errors.New("notification not found")
	// ErrDeliveryLogNotFound is returned when no log exists for the channel.
	ErrDeliveryLogNotFound      = errors.New("delivery log not found")
	// ErrPreferenceNotFound is returned by stores when the user has no row
	// for the category.
	ErrPreferenceNotFound       = errors.New("preference not found")
	// ErrProviderSettingsNotFound means the tenant uses the default providers.
	ErrProviderSettingsNotFound = errors.New("provider settings not found")
	// ErrRecipientNotFound is returned when the directory has no contact data.
	ErrRecipientNotFound        = errors.New("recipient not found")
	// ErrInvalidTransition is returned when a delivery log is not PENDING.
	ErrInvalidTransition        = errors.New("invalid delivery status transition")
	// ErrInvalidInput wraps CreateInput validation failures.
	ErrInvalidInput             = errors.New("invalid notification input")
	ErrEmptyPreferenceUpdate    = errors.New("preference update has no fields")
	// ErrNoDestination is returned when neither the payload nor the recipient
	// has an address.
	ErrNoDestination            = errors.New("no delivery destination")
	ErrInvalidDestination       = errors.New("invalid delivery destination")
	// ErrInvalidJob is returned by workers for jobs missing required fields.
	ErrInvalidJob               = errors.New("invalid delivery job")
)

func errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}
