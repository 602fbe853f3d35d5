package jwt

import "time"

type Payload struct {
	UserID    string `json:"id"`
	UserName  string `json:"name"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Expired reports whether the token's lifetime has passed. A zero ExpiresAt
// never expires.
func (p *Payload) Expired() bool {
	return p.ExpiresAt != 0 && p.ExpiresAt < time.Now().Unix()
}
