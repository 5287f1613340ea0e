package api

import "time"

// Response is the envelope every endpoint replies with.
type Response struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func successResponse(data any) Response {
	return Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

func errorResponse(message string) Response {
	return Response{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
}
