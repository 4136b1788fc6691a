package types

import "github.com/golang-jwt/jwt/v5"

// SessionClaims is the payload carried by Loomcast session tokens. A
// token identifies a viewer or creator account (sub) within a tenant
// (customer_id); the remaining fields are free-form profile hints used
// by the edge services and never trusted for authorization decisions.
type SessionClaims struct {
	jwt.RegisteredClaims
	CustomerID  string   `json:"customerId,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	Channel     string   `json:"channel,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}
