package battledto

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Code      string `json:"code"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Hint      string `json:"hint,omitempty"`
}

// DomainError carries an ErrorResponse back to Go callers.
type DomainError struct {
	Status int
	ErrorResponse
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "battleship service error"
}
