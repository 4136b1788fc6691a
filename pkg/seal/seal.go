// Package seal encrypts response payloads to the caller's bearer
// token. The symmetric key is derived from the token itself, so the
// server persists no key material: only a holder of the exact token
// used at encryption time can recover the plaintext, and rotating a
// session token implicitly invalidates the ability to decrypt old
// responses.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loomcast/edgeauth/pkg/codec"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// EnvelopeVersion identifies the envelope layout.
	EnvelopeVersion = 1

	// Algorithm is the cipher recorded in every envelope.
	Algorithm = "AES-256-GCM"

	// MinTokenLength rejects obviously-invalid tokens before any work.
	MinTokenLength = 10

	saltSize      = 16
	ivSize        = 12
	keySize       = 32
	keyIterations = 100_000
)

var (
	// ErrTokenTooShort is returned when the bearer token cannot
	// plausibly be a real credential.
	ErrTokenTooShort = errors.New("token too short to derive an encryption key")

	// ErrDecryption covers every decrypt failure: a token-hash mismatch
	// and a GCM authentication failure are deliberately the same error.
	ErrDecryption = errors.New("decryption failed: wrong token or corrupted payload")
)

// Envelope is the encrypted payload wrapper. It binds the ciphertext to
// a SHA-256 hash of the encrypting token without storing the token.
type Envelope struct {
	Version   int    `json:"version"`
	Encrypted bool   `json:"encrypted"`
	Algorithm string `json:"algorithm"`
	IV        string `json:"iv"`
	Salt      string `json:"salt"`
	TokenHash string `json:"tokenHash"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Encrypt serializes payload as JSON and encrypts it to the bearer
// token. Salt and IV are freshly random on every call, so two calls
// with identical inputs never produce the same ciphertext.
func Encrypt(payload any, token string) (*Envelope, error) {
	if len(token) < MinTokenLength {
		return nil, ErrTokenTooShort
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	gcm, err := deriveCipher(token, salt)
	if err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, iv, plaintext, nil)
	tokenHash := sha256.Sum256([]byte(token))

	return &Envelope{
		Version:   EnvelopeVersion,
		Encrypted: true,
		Algorithm: Algorithm,
		IV:        codec.Encode(iv),
		Salt:      codec.Encode(salt),
		TokenHash: codec.Encode(tokenHash[:]),
		Data:      codec.Encode(ciphertext),
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Decrypt recovers the plaintext JSON from raw. Input without the
// encrypted marker is returned unchanged, so callers can feed both
// plain and sealed payloads through the same path. The token hash is
// compared before any key derivation: a wrong token fails fast without
// spending a PBKDF2 cycle.
func Decrypt(raw []byte, token string) ([]byte, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		// Passthrough is only for input without the encrypted marker. A
		// payload that carries the marker but cannot be decoded as an
		// envelope is corrupted, never plaintext.
		var marker struct {
			Encrypted bool `json:"encrypted"`
		}
		if json.Unmarshal(raw, &marker) == nil && marker.Encrypted {
			return nil, ErrDecryption
		}
		return raw, nil
	}
	if !envelope.Encrypted {
		// Backward-compatible passthrough for unencrypted payloads.
		return raw, nil
	}

	tokenHash := sha256.Sum256([]byte(token))
	storedHash, err := codec.Decode(envelope.TokenHash)
	if err != nil || subtle.ConstantTimeCompare(tokenHash[:], storedHash) != 1 {
		return nil, ErrDecryption
	}

	salt, err := codec.Decode(envelope.Salt)
	if err != nil {
		return nil, ErrDecryption
	}
	iv, err := codec.Decode(envelope.IV)
	if err != nil || len(iv) != ivSize {
		return nil, ErrDecryption
	}
	ciphertext, err := codec.Decode(envelope.Data)
	if err != nil {
		return nil, ErrDecryption
	}

	gcm, err := deriveCipher(token, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		// Authentication-tag failure: corrupted ciphertext or, rarely,
		// a token-hash collision.
		return nil, ErrDecryption
	}

	return plaintext, nil
}

// DecryptInto decrypts raw and unmarshals the plaintext into out.
func DecryptInto(raw []byte, token string, out any) error {
	plaintext, err := Decrypt(raw, token)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("failed to decode decrypted payload: %w", err)
	}
	return nil
}

func deriveCipher(token string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(token), salt, keyIterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return gcm, nil
}
