package errors

import (
	stdErrors "errors"
)

// Dump flattens an error chain into loggable fields.
type DumpResult struct {
	TopMessage string
	Code       string
	Chain      []string
}

func Dump(err error) DumpResult {
	result := DumpResult{}
	if err == nil {
		return result
	}
	result.TopMessage = err.Error()
	if typed := As(err); typed != nil {
		result.Code = string(typed.Code())
	}
	for current := err; current != nil; current = stdErrors.Unwrap(current) {
		result.Chain = append(result.Chain, current.Error())
	}
	return result
}
