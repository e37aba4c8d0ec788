package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse - тело любого отказа шлюза.
// RequestID прокидывается из X-Request-Id, если есть (для трассировки).
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// MessageInternal - ответ на панику и прочие непредвиденные сбои.
const MessageInternal = "Internal server error"

// WriteError пишет {success:false, message} с указанным статусом.
// message должен быть безопасным для пользователя: детали исключений
// сюда не попадают.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := ErrorResponse{Success: false, Message: message}

	if r != nil {
		if rid := r.Header.Get("X-Request-Id"); rid != "" {
			resp.RequestID = rid
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
