package models

import "time"

// CredentialRecord is a stored provider credential for a scope. The Sealed
// field is the base64 blob produced by secrets.Seal; the plaintext key is
// never persisted.
type CredentialRecord struct {
	Scope     string    `json:"scope"`
	Provider  string    `json:"provider"`
	Sealed    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialPreview is a safe listing representation of a credential.
type CredentialPreview struct {
	Scope     string    `json:"scope"`
	Provider  string    `json:"provider"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaskKey returns a masked preview of an API key, e.g. "sk-abc...wxyz".
func MaskKey(key string) string {
	if len(key) <= 10 {
		return "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}
