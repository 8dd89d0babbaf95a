package auth

import (
	"bytes"
	"chat-sync/domain"
	"chat-sync/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimID accepts the user_id claim whether the backend encodes it as a string or a number.
type ClaimID string

func (c *ClaimID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	*c = ClaimID(bytes.Trim(data, `"`))
	return nil
}

// SessionClaims defines the structure of the data stored inside the session JWT.
type SessionClaims struct {
	UserID ClaimID  `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// InspectToken decodes the session token without checking its signature.
// The signing key stays on the backend.
func InspectToken(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidToken, err)
	}
	return claims, nil
}

// ValidateIdentity checks a stored identity against its own token at instant now.
func ValidateIdentity(identity domain.Identity, now time.Time) (*SessionClaims, error) {
	if err := validate.Struct(identity); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	claims, err := InspectToken(identity.Token)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: at %s", errors.ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	if claims.UserID != "" && string(claims.UserID) != identity.ID.String() {
		return nil, fmt.Errorf("%w: token is for %s", errors.ErrIdentityMismatch, claims.UserID)
	}
	return claims, nil
}
