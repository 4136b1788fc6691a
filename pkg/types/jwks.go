package types

// JSONWebKey is a JSON web key as specified by RFC 7517. The private
// RSA fields (D and the CRT precomputation values) are only ever set on
// the issuer's signing key and must never be published or logged.
type JSONWebKey struct {
	Algorithm string `json:"alg,omitempty"`
	KeyID     string `json:"kid,omitempty"`
	KeyType   string `json:"kty,omitempty"`
	Use       string `json:"use,omitempty"`
	N         string `json:"n,omitempty"` // RSA modulus
	E         string `json:"e,omitempty"` // RSA public exponent

	// Private key components (present only on signing key material)
	D  string `json:"d,omitempty"`
	P  string `json:"p,omitempty"`
	Q  string `json:"q,omitempty"`
	DP string `json:"dp,omitempty"`
	DQ string `json:"dq,omitempty"`
	QI string `json:"qi,omitempty"`
}

// Public returns a copy of the key stripped of all private components,
// safe to publish on the JWKS endpoint.
func (k JSONWebKey) Public() JSONWebKey {
	return JSONWebKey{
		Algorithm: k.Algorithm,
		KeyID:     k.KeyID,
		KeyType:   k.KeyType,
		Use:       k.Use,
		N:         k.N,
		E:         k.E,
	}
}

// IsPrivate reports whether the key carries the RSA private exponent.
func (k JSONWebKey) IsPrivate() bool {
	return k.D != ""
}

// JWKS represents a set of JSON Web Keys as served from the
// /.well-known/jwks.json endpoint.
type JWKS struct {
	Keys []JSONWebKey `json:"keys"`
}

// KeyByID returns the key matching kid, or the first key when kid is
// empty. The second return value reports whether a key was found.
func (s *JWKS) KeyByID(kid string) (JSONWebKey, bool) {
	if s == nil || len(s.Keys) == 0 {
		return JSONWebKey{}, false
	}
	if kid == "" {
		return s.Keys[0], true
	}
	for _, key := range s.Keys {
		if key.KeyID == kid {
			return key, true
		}
	}
	return JSONWebKey{}, false
}
