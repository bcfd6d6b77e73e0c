package api

import (
	"errors"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/support-chat/internal/domain"
)

// Identity is the actor described by a bearer token. Verification is
// the backend's job; the client only introspects the claims to know
// who it is acting as.
type Identity struct {
	UserID string
	Name   string
	Role   domain.Role
}

type tokenClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseIdentity extracts the actor from a token without verifying the
// signature.
func ParseIdentity(token string) (*Identity, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, err
	}
	role := domain.Role(claims.Role)
	if role != domain.RoleSeller && role != domain.RoleAdmin {
		return nil, errors.New("token carries no usable role claim")
	}
	if claims.Subject == "" {
		return nil, errors.New("token carries no subject claim")
	}
	return &Identity{UserID: claims.Subject, Name: claims.Name, Role: role}, nil
}
