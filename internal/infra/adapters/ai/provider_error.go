package ai

import (
	"encoding/json"
	"strconv"

	"ai-answering-machine/internal/domain/ports/adapter"
)

// errCodeFromBody extracts err_code from a gateway error body. Both the
// wrapped {"error": {...}} and the bare shape are accepted; codes may be
// numbers or numeric strings.
func errCodeFromBody(raw string) (code int, message string) {
	if raw == "" {
		return 0, ""
	}
	type errBody struct {
		ErrCode json.RawMessage `json:"err_code"`
		Message string          `json:"message"`
	}
	var wrapped struct {
		Error *errBody `json:"error"`
		errBody
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return 0, ""
	}
	body := wrapped.errBody
	if wrapped.Error != nil {
		body = *wrapped.Error
	}
	return parseCode(body.ErrCode), body.Message
}

func parseCode(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}

func newProviderError(provider string, status int, raw, fallbackMsg string, cause error) *adapter.ProviderError {
	code, msg := errCodeFromBody(raw)
	if msg == "" {
		msg = fallbackMsg
	}
	return &adapter.ProviderError{
		Provider:   provider,
		StatusCode: status,
		ErrCode:    code,
		Message:    msg,
		Err:        cause,
	}
}
