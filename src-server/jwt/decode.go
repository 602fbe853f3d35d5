package jwt

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

func Decode(token string, secret string) (*Payload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid token length")
	}

	// signature first, nothing in the payload may be trusted before it checks out
	payloadBase64 := parts[1]
	signatureBase64 := parts[2]
	signature, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		return nil, fmt.Errorf("can't decode signature: %w", err)
	}
	h := hmac.New(sha512.New, []byte(secret))
	h.Write([]byte(payloadBase64))
	if !hmac.Equal(h.Sum(nil), signature) {
		return nil, fmt.Errorf("invalid signature")
	}

	// payload
	payloadJson, err := base64.StdEncoding.DecodeString(payloadBase64)
	if err != nil {
		return nil, fmt.Errorf("can't decode payload: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal(payloadJson, &payload); err != nil {
		return nil, fmt.Errorf("can't unmarshal payload: %w", err)
	}

	if payload.Expired() {
		return nil, fmt.Errorf("token expired")
	}

	return &payload, nil
}
