// Package types holds the JSON envelopes every HTTP response is wrapped in.
package types

// RequestIDHeader is echoed into error bodies so a report can be matched to
// the request logs.
const RequestIDHeader = "X-Request-Id"

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public shape of a failed request. Details carries field
// errors or, after a partially applied status change, the persisted result.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func Success(data any) SuccessEnvelope {
	return SuccessEnvelope{Data: data}
}

// Failure builds an error body. Details are only set when the caller may see
// them.
func Failure(code, message, requestID string, details any) ErrorEnvelope {
	return ErrorEnvelope{Error: APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
	}}
}
