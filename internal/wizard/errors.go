package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rekakarya/orderflow/internal/domain"
	"github.com/rekakarya/orderflow/internal/validation"
)

var (
	// ErrInvalidVisitor indicates the caller did not identify the visitor.
	ErrInvalidVisitor = errors.New("wizard: visitor id is required")
	// ErrStepOutOfOrder indicates a mutation that belongs to another step.
	ErrStepOutOfOrder = errors.New("wizard: step out of order")
	// ErrStepPrerequisite indicates a forward move without the data it needs.
	ErrStepPrerequisite = errors.New("wizard: step prerequisite missing")
	// ErrUnknownDomain indicates the domain was not part of the visitor's last search.
	ErrUnknownDomain = errors.New("wizard: domain not in search results")
	// ErrDomainUnavailable indicates the selected domain is taken.
	ErrDomainUnavailable = errors.New("wizard: domain unavailable")
	// ErrUnknownTemplate indicates the template id is not in the catalogue.
	ErrUnknownTemplate = errors.New("wizard: unknown template")
	// ErrValidation is wrapped by ValidationError.
	ErrValidation = errors.New("wizard: validation failed")
	// ErrInvalidPrice indicates stored prices that cannot be charged.
	ErrInvalidPrice = errors.New("wizard: invalid price")
	// ErrPaymentInProgress indicates another payment for the visitor is being processed.
	ErrPaymentInProgress = errors.New("wizard: payment in progress")
	// ErrPaymentDeclined indicates the provider refused the charge.
	ErrPaymentDeclined = errors.New("wizard: payment declined")
	// ErrPaymentFailed indicates the provider could not process the charge.
	ErrPaymentFailed = errors.New("wizard: payment failed")
	// ErrCancelled indicates simulated work was cancelled before it finished.
	ErrCancelled = errors.New("wizard: cancelled")
)

// StepError reports a mutation attempted outside its step.
type StepError struct {
	Current  domain.Step
	Required domain.Step
}

func (e *StepError) Error() string {
	return fmt.Sprintf("wizard: step out of order: at %q, %q required", e.Current, e.Required)
}

// Unwrap lets errors.Is match ErrStepOutOfOrder.
func (e *StepError) Unwrap() error { return ErrStepOutOfOrder }

// PrerequisiteError lists the state keys a step is still missing.
type PrerequisiteError struct {
	Step    domain.Step
	Missing []string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("wizard: %q requires %s", e.Step, strings.Join(e.Missing, ", "))
}

// Unwrap lets errors.Is match ErrStepPrerequisite.
func (e *PrerequisiteError) Unwrap() error { return ErrStepPrerequisite }

// ValidationError carries the per-field messages of a rejected form.
type ValidationError struct {
	Result validation.Result
}

func (e *ValidationError) Error() string {
	return "wizard: validation failed: " + strings.Join(e.Result.Fields(), ", ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }
