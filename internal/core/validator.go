package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"breathewatch/internal/types"
)

// Validator wraps go-playground/validator with the domain tags used by
// request DTOs:
//
//	notifyemail  a syntactically valid recipient after normalization
//	risklevel    one of Low, Moderate, High, Extreme
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator builds a Validator that reports fields by their JSON names.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("notifyemail", func(fl validator.FieldLevel) bool {
		return types.IsValidEmail(types.NormalizeEmail(fl.Field().String()))
	})
	_ = v.RegisterValidation("risklevel", func(fl validator.FieldLevel) bool {
		return types.RiskLevel(fl.Field().String()).IsValid()
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and converts the first failure into an AppError
// whose code reflects the failing rule.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		v.logger.Error("struct validation misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fe := fieldErrs[0]
	field := fe.Field()
	details := map[string]any{"field": field, "rule": fe.Tag()}

	switch fe.Tag() {
	case "notifyemail":
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidEmail,
			"Please enter a valid email address.", err, details)
	case "risklevel":
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidLevel,
			"level must be one of Low, Moderate, High, Extreme", err, details)
	case "required":
		return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			field+" is required", err, details)
	default:
		if fe.Param() != "" {
			details["param"] = fe.Param()
		}
		return types.NewAppErrorWithDetails(types.ErrCodeValidationFailed,
			field+" failed "+fe.Tag()+" validation", err, details)
	}
}
