package transport

type RefreshRequest struct {
	SessionID string `json:"session_id"`
	TTL       int    `json:"ttl_seconds"`
}

type LogoutRequest struct {
	SessionID string `json:"session_id"`
}
