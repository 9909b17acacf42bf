package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondErrorCode 发送带机器可读 code 的错误响应
func RespondErrorCode(w http.ResponseWriter, status int, message, code string) {
	payload := map[string]string{"error": message}
	if code != "" {
		payload["code"] = code
	}
	RespondJSON(w, status, payload)
}
