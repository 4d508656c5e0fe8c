package transport

import (
	"encoding/json"
	"time"
)

// Envelope wraps every JSON response, success or error.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  interface{} `json:"error,omitempty"`
	Meta   interface{} `json:"meta,omitempty"`
}

func NewSuccess(data interface{}, meta interface{}) Envelope {
	return Envelope{Status: "success", Data: data, Meta: meta}
}

// NewError carries a machine code such as IDENTITY_CONFLICT next to the
// user-facing message.
func NewError(code string, err interface{}, meta interface{}) Envelope {
	return Envelope{Status: "error", Code: code, Error: err, Meta: meta}
}

// String is for log fields only.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}

// SessionResponse is returned by bridge and refresh.
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GuardResponse is one gate evaluation as seen by a client router. The
// watch stream sends the same shape as the data of each decision event.
type GuardResponse struct {
	Route    string      `json:"route"`
	Action   string      `json:"action"`
	Status   string      `json:"status"`
	Location string      `json:"location,omitempty"`
	Reason   string      `json:"reason,omitempty"`
	User     interface{} `json:"user,omitempty"`
}
