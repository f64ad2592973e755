package dto

// ErrorResponse is the error envelope returned by all handlers
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
