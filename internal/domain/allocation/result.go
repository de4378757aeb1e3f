package allocation

import (
	"fmt"

	"fulfil/internal/core/apperror"
)

// Result is the uniform envelope returned across the engine boundary.
// Callers never see a panic or a raw error: failures are folded into a
// Result with Success=false and the taxonomy code preserved in Err.
type Result[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *T     `json:"data,omitempty"`

	// Err keeps the structured error for transports that need the code,
	// details and HTTP status. Not serialized into the envelope itself.
	Err *apperror.AppError `json:"-"`
}

func ok[T any](data T, message string) Result[T] {
	return Result[T]{Success: true, Message: message, Data: &data}
}

func fail[T any](err error) Result[T] {
	appErr, isApp := apperror.AsAppError(err)
	if !isApp {
		appErr = apperror.NewInternal(err)
	}
	return Result[T]{Success: false, Message: appErr.Message, Err: appErr}
}

// guard folds a panic inside fn into a failed Result, so the envelope
// contract holds even against programming errors.
func guard[T any](fn func() (T, string, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = fail[T](apperror.NewInternal(fmt.Errorf("panic: %v", r)))
		}
	}()

	data, message, err := fn()
	if err != nil {
		return fail[T](err)
	}
	return ok(data, message)
}
