// Package errors provides centralized error handling with categories and context
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

// CategorizedError is an interface for errors that can specify their own category
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryFormat        ErrorCategory = "format"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryDatabase      ErrorCategory = "database"
	CategoryNetwork       ErrorCategory = "network"
	CategoryImageFetch    ErrorCategory = "image-fetch"
	CategoryImageStore    ErrorCategory = "image-store"
	CategorySolar         ErrorCategory = "solar-calculation"
	CategoryScheduler     ErrorCategory = "scheduler"
	CategoryJobQueue      ErrorCategory = "job-queue"
	CategoryRetention     ErrorCategory = "retention"
	CategoryEncoder       ErrorCategory = "encoder"
	CategoryConfiguration ErrorCategory = "configuration"
	CategorySystem        ErrorCategory = "system-resource"
	CategoryGeneric       ErrorCategory = "generic"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	Component string         // Component where error occurred
	Category  ErrorCategory  // Error category for better grouping
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is implements error type checking
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetCategory returns the error category
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error with enhanced context
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{
		err: err,
		// context is lazily initialized when needed
	}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name (auto-detected if not set)
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Timing adds performance timing context
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context["operation"] = operation
	eb.context["duration_ms"] = duration.Milliseconds()
	return eb
}

// Build creates the EnhancedError
func (eb *ErrorBuilder) Build() *EnhancedError {
	if eb.component == "" {
		eb.component = detectComponent()
	}
	if eb.category == "" {
		eb.category = detectCategory(eb.err)
	}

	return &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
}

// Component registry for dynamic component detection
var componentRegistry = map[string]string{
	"suncalc":       "suncalc",
	"desample":      "desample",
	"datastore":     "datastore",
	"animation":     "animation",
	"retention":     "retention",
	"capture":       "capture",
	"imagestore":    "imagestore",
	"encoder":       "encoder",
	"runner":        "runner",
	"api":           "api",
	"conf":          "configuration",
	"observability": "observability",
}

// detectComponent detects the component based on the call stack
func detectComponent() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)

	for i := 0; i < n; i++ {
		fn := runtime.FuncForPC(pcs[i])
		if fn == nil {
			continue
		}

		funcName := fn.Name()

		// Skip our own error package frames
		if strings.Contains(funcName, "nps-webcam-animation-generator/internal/errors") {
			continue
		}

		if component := lookupComponent(funcName); component != ComponentUnknown {
			return component
		}
	}

	return ComponentUnknown
}

// lookupComponent searches the registry for a matching component
func lookupComponent(funcName string) string {
	for pattern, component := range componentRegistry {
		if strings.Contains(funcName, pattern) {
			return component
		}
	}

	// Fallback: extract from package path
	parts := strings.Split(funcName, "/")
	if len(parts) > 0 {
		lastPart := parts[len(parts)-1]
		if dotIndex := strings.Index(lastPart, "."); dotIndex > 0 {
			return lastPart[:dotIndex]
		}
	}

	return ComponentUnknown
}

// detectCategory detects the error category when the builder did not set one
func detectCategory(err error) ErrorCategory {
	var catErr CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.ErrorCategory()
	}

	var enhErr *EnhancedError
	if stderrors.As(err, &enhErr) && enhErr.Category != "" {
		return enhErr.Category
	}

	return CategoryGeneric
}

// Convenience functions for common error patterns

// Wrap wraps an existing error with enhanced context
func Wrap(err error) *ErrorBuilder {
	return New(err)
}

// ValidationError creates a validation error
func ValidationError(message string) *EnhancedError {
	return New(NewStd(message)).
		Category(CategoryValidation).
		Build()
}

// FormatError creates a format error
func FormatError(message string) *EnhancedError {
	return New(NewStd(message)).
		Category(CategoryFormat).
		Build()
}

// NotFoundError creates a not-found error
func NotFoundError(message string) *EnhancedError {
	return New(NewStd(message)).
		Category(CategoryNotFound).
		Build()
}

// ConflictError creates a conflict error
func ConflictError(message string) *EnhancedError {
	return New(NewStd(message)).
		Category(CategoryConflict).
		Build()
}

// Standard library passthrough functions
// These allow this package to be a drop-in replacement for the standard errors package

// NewStd creates a new standard error (passthrough to standard library)
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target (passthrough to standard library)
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target (passthrough to standard library)
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err (passthrough to standard library)
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors (passthrough to standard library)
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}

// IsNotFound checks if an error is an EnhancedError with CategoryNotFound.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// IsConflict checks if an error is an EnhancedError with CategoryConflict.
func IsConflict(err error) bool {
	return IsCategory(err, CategoryConflict)
}

// IsValidation checks if an error is an EnhancedError with CategoryValidation
// or CategoryFormat, the two caller-input categories that map to 4xx responses.
func IsValidation(err error) bool {
	return IsCategory(err, CategoryValidation) || IsCategory(err, CategoryFormat)
}
