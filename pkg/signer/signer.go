// Package signer owns the issuer's RSA signing key. The key arrives as
// a JWK record through configuration, is imported once per process and
// cached behind an explicit handle so tests can force re-initialization.
// The private material is never serialized or logged.
package signer

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/loomcast/edgeauth/pkg/codec"
	"github.com/loomcast/edgeauth/pkg/types"
)

const minModulusBits = 2048 // RSA minimum key size

// Configuration errors. These are operator-facing and may be verbose;
// they must never be rendered to API callers beyond a generic 500.
var (
	ErrNoKeyMaterial      = errors.New("signing key material is not configured")
	ErrInvalidKeyMaterial = errors.New("signing key material is not a valid RSA private JWK")
)

// Context holds the imported private key, its public JWK and the key
// identifier used in token headers.
type Context struct {
	kid        string
	privateKey *rsa.PrivateKey
	publicJWK  types.JSONWebKey
}

// Kid returns the key identifier emitted in token headers.
func (c *Context) Kid() string { return c.kid }

// PublicKey returns the RSA public key for local verification.
func (c *Context) PublicKey() *rsa.PublicKey { return &c.privateKey.PublicKey }

// PublicJWKS returns the key set published on the JWKS endpoint. Only
// public components are included.
func (c *Context) PublicJWKS() types.JWKS {
	return types.JWKS{Keys: []types.JSONWebKey{c.publicJWK}}
}

// Sign builds and signs a session token with header
// {alg: RS256, typ: JWT, kid}. Signing is a pure local operation; a
// failure here indicates a platform fault, not a usage error.
func (c *Context) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = c.kid

	signed, err := token.SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Cache owns the per-process signing context. Import happens lazily on
// the first Context call and subsequent calls return the same instance
// without re-importing key material.
type Cache struct {
	mu  sync.Mutex
	ctx *Context
}

func NewCache() *Cache {
	return &Cache{}
}

// Context returns the cached signing context, importing material on
// first use. material is the RSA private key in JWK form.
func (s *Cache) Context(material string) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return s.ctx, nil
	}

	ctx, err := importContext(material)
	if err != nil {
		return nil, err
	}

	s.ctx = ctx
	return ctx, nil
}

// Reset drops the cached context so the next Context call re-imports.
func (s *Cache) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = nil
}

func importContext(material string) (*Context, error) {
	if material == "" {
		return nil, ErrNoKeyMaterial
	}

	var key types.JSONWebKey
	if err := json.Unmarshal([]byte(material), &key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyMaterial, err)
	}

	if key.KeyType != "RSA" || !key.IsPrivate() {
		return nil, fmt.Errorf("%w: kty=RSA with a private exponent is required", ErrInvalidKeyMaterial)
	}

	privateKey, err := rsaKeyFromJWK(&key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyMaterial, err)
	}

	if privateKey.N.BitLen() < minModulusBits {
		return nil, fmt.Errorf("%w: modulus below 2048 bits", ErrInvalidKeyMaterial)
	}

	kid := key.KeyID
	if kid == "" {
		kid = Thumbprint(key.E, key.N)
	}

	public := key.Public()
	public.KeyID = kid
	if public.Use == "" {
		public.Use = "sig"
	}
	if public.Algorithm == "" {
		public.Algorithm = "RS256"
	}

	return &Context{
		kid:        kid,
		privateKey: privateKey,
		publicJWK:  public,
	}, nil
}

// Thumbprint computes the key identifier as the first 8 base64url
// characters of the SHA-256 digest of the canonical {e, kty, n} triple
// (RFC 7638, members in lexicographic order).
func Thumbprint(e, n string) string {
	canonical := fmt.Sprintf(`{"e":%q,"kty":"RSA","n":%q}`, e, n)
	digest := sha256.Sum256([]byte(canonical))
	return codec.Encode(digest[:])[:8]
}

func rsaKeyFromJWK(key *types.JSONWebKey) (*rsa.PrivateKey, error) {
	n, err := decodeBigInt(key.N, "n")
	if err != nil {
		return nil, err
	}
	e, err := decodeBigInt(key.E, "e")
	if err != nil {
		return nil, err
	}
	d, err := decodeBigInt(key.D, "d")
	if err != nil {
		return nil, err
	}

	privateKey := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
		D:         d,
	}

	// The prime factors are optional in a JWK; when present they enable
	// the CRT fast path and full key validation.
	if key.P != "" && key.Q != "" {
		p, err := decodeBigInt(key.P, "p")
		if err != nil {
			return nil, err
		}
		q, err := decodeBigInt(key.Q, "q")
		if err != nil {
			return nil, err
		}
		privateKey.Primes = []*big.Int{p, q}

		if err := privateKey.Validate(); err != nil {
			return nil, fmt.Errorf("key failed validation: %w", err)
		}
		privateKey.Precompute()
	}

	return privateKey, nil
}

func decodeBigInt(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing %s component", field)
	}
	b, err := codec.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s component: %w", field, err)
	}
	return new(big.Int).SetBytes(b), nil
}
