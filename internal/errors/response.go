package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx admin API reply:
//
//	{"error":{"code":"unknown_setting","message":"...","retryable":false,"details":{"key":"..."}}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`         // derived from Code
	Details   map[string]interface{} `json:"details,omitempty"` // e.g. setting key, offending field
}

// NewErrorResponse fills Retryable from the code.
func NewErrorResponse(code ErrorCode, message string, details map[string]interface{}) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: code.IsRetryable(),
			Details:   details,
		},
	}
}

// WriteJSON sends the envelope with the code's status. Error replies are
// never cached.
func (e ErrorResponse) WriteJSON(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(e.Error.Code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(e)
}

func WriteError(w http.ResponseWriter, code ErrorCode, message string, details map[string]interface{}) {
	NewErrorResponse(code, message, details).WriteJSON(w)
}

func WriteSimpleError(w http.ResponseWriter, code ErrorCode, message string) {
	WriteError(w, code, message, nil)
}

func WriteErrorWithDetail(w http.ResponseWriter, code ErrorCode, message string, key string, value interface{}) {
	WriteError(w, code, message, map[string]interface{}{key: value})
}

// WriteSettingError reports a failure tied to one header setting. An empty
// settingKey omits the detail.
func WriteSettingError(w http.ResponseWriter, code ErrorCode, message, settingKey string) {
	if settingKey == "" {
		WriteSimpleError(w, code, message)
		return
	}
	WriteErrorWithDetail(w, code, message, "key", settingKey)
}
