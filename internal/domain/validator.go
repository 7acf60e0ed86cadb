package domain

import "errors"

type RequestValidator struct{}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{}
}

func (v *RequestValidator) Validate(req RunRequest) error {
	if req.Interpreter == "" {
		return errors.New("interpreter cannot be empty")
	}

	if req.Script == "" {
		return errors.New("script cannot be empty")
	}

	return nil
}
