package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers policygate-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("failed to register audit_output validator: %w", err)
	}
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateAuditOutput validates the audit output field.
// Valid values: "stdout" or "file://<absolute-path>"
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()

	if output == "stdout" {
		return true
	}

	if strings.HasPrefix(output, "file://") {
		path := strings.TrimPrefix(output, "file://")
		return path != "" && filepath.IsAbs(path)
	}

	return false
}

// validateDuration validates that a field parses as a Go duration.
func validateDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// Validate validates the Config using struct tags and custom rules.
// Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	return nil
}

// CacheTTL returns the parsed cache TTL duration.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// PruneInterval returns the parsed prune interval, zero when disabled.
func (c *Config) PruneInterval() time.Duration {
	if c.Cache.PruneInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Cache.PruneInterval)
	if err != nil {
		return 0
	}
	return d
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError renders one field error with its constraint.
func formatSingleValidationError(e validator.FieldError) string {
	field := strings.ToLower(e.Namespace())
	field = strings.TrimPrefix(field, "config.")

	switch e.Tag() {
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s]", field, e.Param())
	case "min":
		return fmt.Sprintf("%s: must be at least %s", field, e.Param())
	case "required":
		return fmt.Sprintf("%s: is required", field)
	case "required_if":
		return fmt.Sprintf("%s: is required for this backend", field)
	case "audit_output":
		return fmt.Sprintf("%s: must be \"stdout\" or \"file://<absolute-path>\"", field)
	case "duration":
		return fmt.Sprintf("%s: must be a valid duration (e.g. \"5m\")", field)
	default:
		return fmt.Sprintf("%s: failed %s validation", field, e.Tag())
	}
}
