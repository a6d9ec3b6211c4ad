package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the wire shape of every failure: a stable error string plus
// a details object that is always present, never null.
type ErrorBody struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details"`
}

// MessageBody is the wire shape of operations that report an outcome
// rather than a record.
type MessageBody struct {
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func Message(w http.ResponseWriter, statusCode int, message string) {
	JSON(w, statusCode, MessageBody{Message: message})
}

func Error(w http.ResponseWriter, statusCode int, message string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	JSON(w, statusCode, ErrorBody{Error: message, Details: details})
}
