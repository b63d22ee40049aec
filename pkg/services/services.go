package services

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateRequest(op string, req any) error {
	if err := validate.Struct(req); err != nil {
		return NewValidationError(op, "invalid_request", err.Error(), fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}

	return nil
}
