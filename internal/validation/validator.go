// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package validation provides struct validation using go-playground/validator
// v10: a thread-safe singleton instance with custom validators for the
// shapes this application exchanges at its boundaries.
//
// Custom validators:
//   - dayfmt: a YYYY-MM-DD UTC calendar day string
//   - consentstatus: one of the consent status enum values
//   - linksource: one of the identity link source enum values
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError is a single field validation failure.
type ValidationError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error returns the human-readable message.
func (e *ValidationError) Error() string {
	return e.Message
}

// Errors is a collection of field validation failures for one struct.
type Errors struct {
	Fields []ValidationError
}

// Error implements the error interface with a combined message.
func (ve *Errors) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		messages[i] = f.Message
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the singleton validator, initializing it on first
// use. Thread-safe; validator caches struct metadata internally.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Registration errors only occur for empty tags or nil functions,
		// neither of which is possible here.
		_ = validate.RegisterValidation("dayfmt", validateDay)
		_ = validate.RegisterValidation("consentstatus", validateOneOfStrings(
			"pending", "express", "implied", "withdrawn"))
		_ = validate.RegisterValidation("linksource", validateOneOfStrings(
			"form_submit", "same_ip_ua_window", "manual_merge"))
	})
	return validate
}

// ValidateStruct validates a struct using the singleton validator.
// Returns nil on success or an *Errors describing every failing field.
func ValidateStruct(s interface{}) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &Errors{Fields: []ValidationError{{
			Field:   "unknown",
			Tag:     "unknown",
			Message: err.Error(),
		}}}
	}

	fields := make([]ValidationError, len(validationErrs))
	for i, fieldErr := range validationErrs {
		fields[i] = ValidationError{
			Field:   fieldErr.Field(),
			Tag:     fieldErr.Tag(),
			Param:   fieldErr.Param(),
			Message: translateError(fieldErr),
		}
	}
	return &Errors{Fields: fields}
}

// ParseDay parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: expected YYYY-MM-DD", day)
	}
	return t, nil
}

// validateDay checks the dayfmt tag.
func validateDay(fl validator.FieldLevel) bool {
	_, err := ParseDay(fl.Field().String())
	return err == nil
}

// validateOneOfStrings builds a validator accepting a fixed string set.
func validateOneOfStrings(allowed ...string) validator.Func {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return func(fl validator.FieldLevel) bool {
		_, ok := set[fl.Field().String()]
		return ok
	}
}

// translateError produces a readable message for one field error.
func translateError(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldErr.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fieldErr.Field(), fieldErr.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fieldErr.Field(), fieldErr.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fieldErr.Field())
	case "dayfmt":
		return fmt.Sprintf("%s must be a YYYY-MM-DD day", fieldErr.Field())
	case "consentstatus":
		return fmt.Sprintf("%s must be one of pending, express, implied, withdrawn", fieldErr.Field())
	case "linksource":
		return fmt.Sprintf("%s must be one of form_submit, same_ip_ua_window, manual_merge", fieldErr.Field())
	default:
		return fmt.Sprintf("%s failed validation on %s", fieldErr.Field(), fieldErr.Tag())
	}
}
