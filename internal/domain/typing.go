package domain

import "time"

// TypingState is the other party's typing flag as last reported by the
// backend. It is presence-by-absence: consumers must treat it as stale
// once it has not been renewed within their freshness window.
type TypingState struct {
	UserName      string    `json:"user_name"`
	IsTyping      bool      `json:"is_typing"`
	LastRenewedAt time.Time `json:"last_renewed_at"`
}
