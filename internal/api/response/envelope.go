// Package response defines the uniform API envelope
// {status, data?, message?}.
package response

// Status is the envelope outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Envelope wraps every payload returned by the envelope-style endpoints.
type Envelope[T any] struct {
	Status  Status `json:"status"`
	Data    *T     `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Convert builds an envelope. A non-empty errorMessage always wins; a nil
// data with no message is still a success, just without a payload.
func Convert[T any](data *T, errorMessage string) Envelope[T] {
	switch {
	case errorMessage != "":
		return Envelope[T]{Status: StatusError, Message: errorMessage}
	case data != nil:
		return Envelope[T]{Status: StatusSuccess, Data: data}
	default:
		return Envelope[T]{Status: StatusSuccess}
	}
}

// Success wraps data in a success envelope.
func Success[T any](data T) Envelope[T] {
	return Convert(&data, "")
}

// Error builds an error envelope with no payload.
func Error(message string) Envelope[struct{}] {
	return Convert[struct{}](nil, message)
}
