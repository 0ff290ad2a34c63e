// Package apperror defines the lock controller's error taxonomy and maps
// validation failures to readable messages.
package apperror

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Conditions the controller reports. None of them crash the process.
var (
	ErrParse           = errors.New("malformed payload")
	ErrSecretMismatch  = errors.New("secret mismatch")
	ErrConfigMismatch  = errors.New("station config device type mismatch")
	ErrConfigTimeout   = errors.New("station config not received in time")
	ErrBufferOverrun   = errors.New("checkin buffer overrun")
	ErrInvalidArgument = errors.New("invalid argument")
)

var (
	errRequired = errors.New("is required")
)

var customErrors = map[string]error{
	"CheckinPayload.Secret.required":            errRequired,
	"CheckinPayload.DeviceType.required":        errRequired,
	"StationConfigResponse.DeviceType.required": errRequired,
}

// CustomValidationError converts validator errors into a list of field messages.
func CustomValidationError(err error) []map[string]string {
	errList := make([]map[string]string, 0)

	var (
		validationErr validator.ValidationErrors
	)

	switch {
	case errors.As(err, &validationErr):
		for _, e := range validationErr {
			field := e.StructNamespace()
			key := field + "." + e.Tag()

			errMsg := fmt.Sprintf("%s is invalid", field)
			if v, ok := customErrors[key]; ok {
				errMsg = v.Error()
			}

			errList = append(errList, map[string]string{e.Field(): errMsg})
		}
	}
	return errList
}

// Fields flattens CustomValidationError output into "field: message" strings
// suitable for a log field.
func Fields(err error) []string {
	var out []string
	for _, m := range CustomValidationError(err) {
		for k, v := range m {
			out = append(out, k+": "+v)
		}
	}
	return out
}
