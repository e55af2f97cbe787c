package service

import (
	"errors"
	"fmt"

	"github.com/safar/rain-market/internal/database"
)

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidAction       = errors.New("invalid order action")
	ErrOrderNotPayable     = errors.New("order is not awaiting payment")
	ErrAlreadyPaid         = errors.New("order already paid")
	ErrPaymentCaptured     = database.ErrPaymentCaptured
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrNoPaymentReference  = errors.New("payment has no gateway reference yet")
	ErrUnsupportedCurrency = errors.New("unsupported display currency")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
