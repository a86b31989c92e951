package error_messages

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicate    = errors.New("record already exists")
	ErrNotExists    = errors.New("row not exists")
	ErrUpdateFailed = errors.New("update failed")
	ErrDeleteFailed = errors.New("delete failed")

	ErrInvalidItem = errors.New("invalid item")

	// Checkout field validation
	ErrEmailRequired      = errors.New("email is required")
	ErrEmailInvalid       = errors.New("enter a valid email")
	ErrPostalCodeRequired = errors.New("postal code is required")
	ErrQuoteRequired      = errors.New("postal code must be validated before purchase")
	ErrEmptyCart          = errors.New("cart is empty")

	ErrInvalidPostalCode    = errors.New("postal code is not valid")
	ErrUnexpectedStatus     = errors.New("unexpected response status")
	ErrQuoteFailed          = errors.New("could not validate postal code, try again")
	ErrOrderFailed          = errors.New("could not create order")
	ErrSubmissionInProgress = errors.New("purchase is already being submitted")
)

// FieldError is a validation failure caught locally and tied to one input.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// InvalidPostalCodeError carries the message the shipping quote endpoint
// returned for a postal code it refused.
type InvalidPostalCodeError struct {
	Message string
}

func (e *InvalidPostalCodeError) Error() string {
	if e.Message == "" {
		return ErrInvalidPostalCode.Error()
	}
	return e.Message
}

func (e *InvalidPostalCodeError) Is(target error) bool {
	return target == ErrInvalidPostalCode
}

// StatusError wraps ErrUnexpectedStatus with the status the remote API sent.
func StatusError(op string, status int) error {
	return fmt.Errorf("%s: %w: %d", op, ErrUnexpectedStatus, status)
}
