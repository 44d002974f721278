package services

import (
	"errors"
	"fmt"

	"github.com/rage/secret-project-331-sub001/internal/repositories"
	"github.com/rage/secret-project-331-sub001/internal/validator"
)

// ===== ERROR KINDS =====

var (
	ErrInvalidInput       = validator.ErrInvalidInput
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrTryLimitExceeded   = errors.New("try limit exceeded")
	ErrRateLimited        = errors.New("rate limited")
	ErrTooMany            = errors.New("too many")
	ErrNotFound           = errors.New("not found")
	ErrGraderUnavailable  = errors.New("grader unavailable")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal error")
)

// Refinements of ErrPreconditionFailed.
var (
	ErrDeadlinePassed       = fmt.Errorf("%w: deadline passed", ErrPreconditionFailed)
	ErrReviewAlreadyStarted = fmt.Errorf("%w: review already started", ErrPreconditionFailed)
)

// ===== STRUCTURED ERRORS =====

type ValidationError = validator.ValidationError
type ValidationErrors = validator.ValidationErrors

func NewValidationError(field, message string, value interface{}) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message, Value: value}}
}

// BusinessRuleError is a rule violation. It matches its Kind with errors.Is.
type BusinessRuleError struct {
	Kind    error                  `json:"-"`
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func (e *BusinessRuleError) Unwrap() error {
	return e.Kind
}

func NewBusinessRuleError(kind error, rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Kind:    kind,
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// notFound maps repository misses to ErrNotFound and wraps everything else.
func notFound(err error, what string) error {
	if repositories.IsNotFoundError(err) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
