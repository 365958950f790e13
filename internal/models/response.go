package models

// ServiceResponse is the envelope every service operation returns.
// Callers must check Success before trusting Data.
type ServiceResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *T     `json:"data"`

	// Err keeps the typed failure for callers that map it (HTTP status, tests).
	Err error `json:"-"`
}

func OK[T any](data T, message string) ServiceResponse[T] {
	return ServiceResponse[T]{Success: true, Message: message, Data: &data}
}

func Fail[T any](err error, message string) ServiceResponse[T] {
	return ServiceResponse[T]{Success: false, Message: message, Err: err}
}
