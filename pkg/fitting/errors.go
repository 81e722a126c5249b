package fitting

import (
	"fmt"

	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/geom"
)

// FittingError is a recoverable condition found during a calculation pass.
// Passes collect them in order and return the whole list to the caller.
type FittingError struct {
	Code        errors.Code
	Message     string
	ComponentID string     // empty when the condition is not tied to one component
	Location    *geom.Vec3 // origin of the component, if known
}

// Error implements the error interface.
func (e FittingError) Error() string {
	if e.ComponentID != "" {
		return fmt.Sprintf("%s: %s", e.ComponentID, e.Message)
	}
	return e.Message
}

// NewFittingError builds a FittingError located at component c.
// c may be nil for tree-wide conditions.
func NewFittingError(c Component, code errors.Code, format string, args ...any) FittingError {
	fe := FittingError{Code: code, Message: fmt.Sprintf(format, args...)}
	if c != nil {
		b := c.base()
		fe.ComponentID = b.ID
		loc := b.Origin
		fe.Location = &loc
	}
	return fe
}

// ErrorFrom converts err into a FittingError located at c, keeping the
// error code and message of coded errors.
func ErrorFrom(c Component, err error) FittingError {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return NewFittingError(c, code, "%s", errors.UserMessage(err))
}
