package authkit

import (
	"context"

	"google.golang.org/api/idtoken"
)

// GoogleTokenValidator verifies Google ID tokens for a given audience.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error)
}

// NewGoogleTokenValidator builds a validator backed by Google's published keys.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, err
	}
	return validator, nil
}
