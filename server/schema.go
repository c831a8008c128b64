package server

// ApiError represents a structured API error response.
type ApiError struct {
	Success   bool   `json:"success"`
	Status    int    `json:"status"`
	Err       string `json:"error"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
