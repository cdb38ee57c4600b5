// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"time"

	validation "github.com/jellydator/validation"

	apperrors "github.com/custodia/custodia/internal/errors"
)

var (
	// keyNameRegex restricts key names to a safe storage-path charset.
	keyNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-]{0,127}$`)

	// mountNameRegex restricts engine mount names.
	mountNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{0,63}$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// KeyName validates a named-key identifier: alphanumeric start, then
// alphanumerics, hyphens or underscores, at most 128 characters.
var KeyName = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_key_name_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	if !keyNameRegex.MatchString(s) {
		return validation.NewError(
			"validation_key_name",
			"must start with a letter or digit and contain only letters, digits, hyphens and underscores (max 128 chars)",
		)
	}
	return nil
})

// MountName validates an engine mount name: lowercase alphanumerics and
// hyphens, at most 64 characters.
var MountName = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_mount_name_type", "must be a string")
	}
	if s == "" {
		return nil
	}
	if !mountNameRegex.MatchString(s) {
		return validation.NewError(
			"validation_mount_name",
			"must contain only lowercase letters, digits and hyphens (max 64 chars)",
		)
	}
	return nil
})

// TTLRange validates a duration lies within [min, max].
type TTLRange struct {
	Min time.Duration
	Max time.Duration
}

// Validate checks if the duration is within the configured range
func (t TTLRange) Validate(value interface{}) error {
	d, ok := value.(time.Duration)
	if !ok {
		return validation.NewError("validation_ttl_type", "must be a duration")
	}
	if d < t.Min {
		return validation.NewError("validation_ttl_min", "ttl is below the minimum of "+t.Min.String())
	}
	if t.Max > 0 && d > t.Max {
		return validation.NewError("validation_ttl_max", "ttl exceeds the maximum of "+t.Max.String())
	}
	return nil
}
