// Package codec provides the base64url helpers shared by the token,
// key and envelope packages. All encodings are unpadded (RFC 4648 §5),
// matching the JWT and JWK wire formats.
package codec

import (
	"encoding/base64"
	"fmt"
)

// Encode returns the unpadded base64url encoding of data.
func Encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode decodes an unpadded base64url string. Padded input is accepted
// as well since some clients still emit it.
func Decode(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}

	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64url data: %w", err)
	}
	return b, nil
}

// EncodeString is a convenience wrapper for encoding string payloads.
func EncodeString(s string) string {
	return Encode([]byte(s))
}

// DecodeString decodes a base64url string into a string.
func DecodeString(s string) (string, error) {
	b, err := Decode(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
