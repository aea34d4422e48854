package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks the configuration with struct tags plus the custom
// rules that tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Repositories.Source == "file" && cfg.Repositories.Path == "" {
		return fmt.Errorf("repositories: path is required when source is \"file\"")
	}

	if cfg.Metadata.Type == "remote" {
		url, _ := cfg.Metadata.Remote["url"].(string)
		if url == "" {
			return fmt.Errorf("metadata.remote: url is required when type is \"remote\"")
		}
	}
	if cfg.Repositories.Source == "remote" && cfg.Metadata.Type != "remote" {
		return fmt.Errorf("repositories: source \"remote\" requires metadata type \"remote\"")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
