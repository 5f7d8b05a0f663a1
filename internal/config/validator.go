package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers portal-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: validates Go duration strings like "30s", "5m"
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateDuration validates that a field parses as a time.Duration.
func validateDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// Validate validates the Config using struct tags and custom cross-field
// rules. Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateVault(); err != nil {
		return err
	}
	if err := c.validateLoginStrategy(); err != nil {
		return err
	}
	if err := c.validateRoutes(); err != nil {
		return err
	}

	return nil
}

// validateVault ensures the selected vault has its backend configured.
func (c *Config) validateVault() error {
	switch c.Session.Vault {
	case "redis":
		if c.Session.Redis.Addr == "" {
			return errors.New("session: redis vault requires session.redis.addr")
		}
	case "file":
		if c.Session.StatePath == "" {
			return errors.New("session: file vault requires session.state_path")
		}
	case "sqlite":
		if c.Session.SQLitePath == "" {
			return errors.New("session: sqlite vault requires session.sqlite_path")
		}
	}
	return nil
}

// validateLoginStrategy ensures the selected strategy has what it needs.
func (c *Config) validateLoginStrategy() error {
	switch c.Login.Strategy {
	case "backend":
		if c.Login.Backend.BaseURL == "" {
			return errors.New("login: backend strategy requires login.backend.base_url")
		}
	case "fixed_table":
		// Empty accounts fall back to the demo table, so nothing to check.
	}

	seen := make(map[string]int, len(c.Login.Accounts))
	for i, acct := range c.Login.Accounts {
		if prev, dup := seen[acct.Email]; dup {
			return fmt.Errorf("login: accounts[%d] and accounts[%d] share email %q", prev, i, acct.Email)
		}
		seen[acct.Email] = i
	}
	return nil
}

// validateRoutes enforces the rules struct tags cannot express: role access
// needs a role, and no two rules may claim the same path.
func (c *Config) validateRoutes() error {
	seen := make(map[string]int, len(c.Routes.Rules))
	for i, rule := range c.Routes.Rules {
		if rule.Access == "role" && rule.Role == "" {
			return fmt.Errorf("routes: rules[%d] (%s): role access requires a role", i, rule.Path)
		}
		if rule.Access != "role" && rule.Role != "" {
			return fmt.Errorf("routes: rules[%d] (%s): role is only valid with role access", i, rule.Path)
		}
		if prev, dup := seen[rule.Path]; dup {
			return fmt.Errorf("routes: rules[%d] and rules[%d] share path %q", prev, i, rule.Path)
		}
		seen[rule.Path] = i
	}

	for role, home := range c.Routes.RoleHomes {
		if !strings.HasPrefix(home, "/") {
			return fmt.Errorf("routes: role_homes[%s] = %q must start with /", role, home)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
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

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a valid duration (e.g. \"30s\", \"5m\")", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
