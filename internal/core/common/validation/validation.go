package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/disbursement/internal"
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

// ValidationBuilder collects field rules and reports every violation at once.
type ValidationBuilder struct {
	prefix string
	fields []*FieldValidator
	extra  []errors.ValidationError
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		fields: make([]*FieldValidator, 0),
	}
}

// Nested returns a builder whose field names are prefixed, e.g. "payments[2]".
// Its rules are reported through the parent's Validate.
func (v *ValidationBuilder) Nested(prefix string) *ValidationBuilder {
	full := prefix
	if v.prefix != "" {
		full = v.prefix + "." + prefix
	}
	child := &ValidationBuilder{prefix: full}
	v.fields = append(v.fields, &FieldValidator{
		FieldName: full,
		Validators: []ValidatorFunc{func(interface{}) *errors.AppError {
			return child.Validate()
		}},
	})
	return child
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	if v.prefix != "" {
		name = v.prefix + "." + name
	}
	fv := &FieldValidator{
		FieldName:  name,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return fv
}

// Fail records a violation that is not tied to a single value check.
func (v *ValidationBuilder) Fail(name, message string, code errors.ErrorCode) {
	if v.prefix != "" && name != "" {
		name = v.prefix + "." + name
	} else if name == "" {
		name = v.prefix
	}
	v.extra = append(v.extra, errors.ValidationError{Field: name, Message: message, Code: string(code)})
}

func (fv *FieldValidator) fail(message string, code errors.ErrorCode) *errors.AppError {
	return errors.NewValidationFieldError(fv.FieldName, message, code)
}

func (fv *FieldValidator) Required() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		msg := fmt.Sprintf("%s is required", fv.FieldName)
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return fv.fail(msg, errors.ErrCodeValidationFailed)
			}
		case *string:
			if v == nil || strings.TrimSpace(*v) == "" {
				return fv.fail(msg, errors.ErrCodeValidationFailed)
			}
		case time.Time:
			if v.IsZero() {
				return fv.fail(msg, errors.ErrCodeValidationFailed)
			}
		case *decimal.Decimal:
			if v == nil {
				return fv.fail(msg, errors.ErrCodeValidationFailed)
			}
		case nil:
			return fv.fail(msg, errors.ErrCodeValidationFailed)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MinInt(min int64, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := toInt64(value); ok && v < min {
			return fv.fail(fmt.Sprintf("%s must be at least %d", fv.FieldName, min), code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MaxInt(max int64, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := toInt64(value); ok && v > max {
			return fv.fail(fmt.Sprintf("%s must not exceed %d", fv.FieldName, max), code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MinLength(min int) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok && len(v) < min {
			return fv.fail(fmt.Sprintf("%s must be at least %d characters", fv.FieldName, min), errors.ErrCodeValidationFailed)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MaxLength(max int) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok && len(v) > max {
			return fv.fail(fmt.Sprintf("%s must not exceed %d characters", fv.FieldName, max), errors.ErrCodeValidationFailed)
		}
		return nil
	})
	return fv
}

// Positive requires a decimal strictly greater than zero.
func (fv *FieldValidator) Positive() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if d, ok := toDecimal(value); ok && !d.IsPositive() {
			return fv.fail(fmt.Sprintf("%s must be positive", fv.FieldName), errors.ErrCodeInvalidAmount)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MaxDecimal(max decimal.Decimal, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if d, ok := toDecimal(value); ok && d.GreaterThan(max) {
			return fv.fail(fmt.Sprintf("%s must not exceed %s", fv.FieldName, max.StringFixed(2)), code)
		}
		return nil
	})
	return fv
}

// MaxScale rejects decimals with more fractional digits than places.
func (fv *FieldValidator) MaxScale(places int32) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if d, ok := toDecimal(value); ok && !d.Equal(d.Truncate(places)) {
			return fv.fail(fmt.Sprintf("%s must have at most %d decimal places", fv.FieldName, places), errors.ErrCodeInvalidAmount)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) NotFuture() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(time.Time); ok && v.After(time.Now()) {
			return fv.fail(fmt.Sprintf("%s cannot be in the future", fv.FieldName), errors.ErrCodeInvalidDate)
		}
		return nil
	})
	return fv
}

// NotPast compares against the start of the current day so that "today" is accepted.
func (fv *FieldValidator) NotPast(now time.Time) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		v, ok := value.(time.Time)
		if !ok || v.IsZero() {
			return nil
		}
		y, m, d := now.Date()
		if v.Before(time.Date(y, m, d, 0, 0, 0, 0, now.Location())) {
			return fv.fail(fmt.Sprintf("%s cannot be in the past", fv.FieldName), errors.ErrCodeInvalidDate)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) OneOf(allowed ...string) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		v, ok := value.(string)
		if !ok || v == "" {
			return nil
		}
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fv.fail(fmt.Sprintf("%s must be one of %s", fv.FieldName, strings.Join(allowed, ", ")), errors.ErrCodeInvalidFormat)
	})
	return fv
}

func (fv *FieldValidator) Pattern(re *regexp.Regexp, description string) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		v, ok := value.(string)
		if !ok || v == "" {
			return nil
		}
		if !re.MatchString(v) {
			return fv.fail(fmt.Sprintf("%s must be %s", fv.FieldName, description), errors.ErrCodeInvalidFormat)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) Custom(validator func(interface{}) *errors.AppError) *FieldValidator {
	fv.Validators = append(fv.Validators, validator)
	return fv
}

func (v *ValidationBuilder) collect() []errors.ValidationError {
	var validationErrors []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			err := validator(field.Value)
			if err == nil {
				continue
			}
			if details, ok := err.Details.(errors.ValidationErrors); ok {
				validationErrors = append(validationErrors, details.Errors...)
				continue
			}
			validationErrors = append(validationErrors, errors.ValidationError{
				Field:   field.FieldName,
				Message: err.Message,
				Code:    string(err.Code),
			})
		}
	}

	return append(validationErrors, v.extra...)
}

func (v *ValidationBuilder) Validate() *errors.AppError {
	validationErrors := v.collect()
	if len(validationErrors) > 0 {
		return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
			WithDetails(errors.ValidationErrors{Errors: validationErrors})
	}
	return nil
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

func toDecimal(value interface{}) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, false
		}
		return *v, true
	}
	return decimal.Zero, false
}
