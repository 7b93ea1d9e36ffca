package authkit

import (
	"time"
)

// DefaultTokenTTL is the lifetime of issued bearer tokens.
const DefaultTokenTTL = 24 * time.Hour

// ServerConfig carries the signing secret and token lifetime shared by TokenIssuer and AuthGate.
type ServerConfig struct {
	SigningKey        []byte
	TokenTTL          time.Duration
	GoogleWebClientID string
}
