// Package vm provides error handling for the usecode virtual machine.
package vm

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of runtime error.
type ErrorType string

const (
	// Instruction faults - the current execution slice is aborted and the
	// process is handed to the scheduler for termination.
	ErrorStackFault     ErrorType = "STACK_FAULT"
	ErrorCodeFault      ErrorType = "CODE_FAULT"
	ErrorMissingList    ErrorType = "MISSING_LIST"
	ErrorSizeMismatch   ErrorType = "ELEMENT_SIZE_MISMATCH"
	ErrorEndOfFunction  ErrorType = "END_OF_FUNCTION"
	ErrorLoopScript     ErrorType = "LOOPSCRIPT"
	ErrorBadOperand     ErrorType = "BAD_OPERAND"
	ErrorBadSegment     ErrorType = "BAD_SEGMENT"
	ErrorDeadProcess    ErrorType = "DEAD_PROCESS"
	ErrorUnknownProcess ErrorType = "UNKNOWN_PROCESS"

	// Data errors - logged, a safe default is substituted and execution continues
	ErrorInvalidHandle    ErrorType = "INVALID_HANDLE"
	ErrorDivisionByZero   ErrorType = "DIVISION_BY_ZERO"
	ErrorUnknownIntrinsic ErrorType = "UNKNOWN_INTRINSIC"
	ErrorGlobalWidth      ErrorType = "GLOBAL_WIDTH"
)

// Persistence errors.
var (
	ErrCorruptSave = errors.New("corrupt save data")
	ErrTruncated   = errors.New("truncated save data")
)

// RuntimeError represents a runtime error raised while executing usecode.
// The location fields are filled in by the dispatcher; errors raised outside
// of a running process leave PID at 0.
type RuntimeError struct {
	Type    ErrorType
	Message string
	PID     uint16
	Class   uint16
	IP      uint16
	Item    uint16
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.PID != 0 {
		return fmt.Sprintf("[%s] %s (pid %d at %04X:%04X, item %d)",
			e.Type, e.Message, e.PID, e.Class, e.IP, e.Item)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// IsFatal reports whether the error aborts the current execution slice.
func (e *RuntimeError) IsFatal() bool {
	switch e.Type {
	case ErrorInvalidHandle, ErrorDivisionByZero, ErrorUnknownIntrinsic, ErrorGlobalWidth:
		return false
	default:
		return true
	}
}

// NewRuntimeError creates a new RuntimeError.
func NewRuntimeError(errType ErrorType, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// at stamps the location of p onto e.
func (e *RuntimeError) at(p *Process) *RuntimeError {
	if p != nil {
		e.PID = p.PID
		e.Class = p.ClassID
		e.IP = p.IP
		e.Item = p.ItemNum
	}
	return e
}

// IsFatalError reports whether err is a fatal RuntimeError.
func IsFatalError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.IsFatal()
	}
	return err != nil
}

// NewDivisionByZeroError creates a division by zero error.
func NewDivisionByZeroError(op string) *RuntimeError {
	return NewRuntimeError(ErrorDivisionByZero, "%s division by zero", op)
}

// NewSizeMismatchError creates an element size mismatch error.
func NewSizeMismatchError(dst, src int) *RuntimeError {
	return NewRuntimeError(ErrorSizeMismatch, "lists with different element sizes (%d != %d)", dst, src)
}

// NewMissingListError creates an invalid list handle error.
func NewMissingListError(what string, handle uint16) *RuntimeError {
	return NewRuntimeError(ErrorMissingList, "%s: invalid list %d", what, handle)
}
