package dto

// SessionResponse carries the token the UI host uses for all further calls.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}
