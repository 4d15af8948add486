package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// LegacyIssuer marks tokens minted by this service itself, used for
// deployments that run without the AI gateway in front.
const LegacyIssuer = "scriptreel-api"

// LegacyClaims are the HMAC-signed claims of a self-issued ScriptReel token.
type LegacyClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// NewLegacyClaims builds claims for a locally issued token.
func NewLegacyClaims(userID, email string) LegacyClaims {
	return LegacyClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: LegacyIssuer,
		},
	}
}

// SignLegacyToken mints an HS256 token for the given user.
func SignLegacyToken(userID, email, secret string) (string, error) {
	claims := NewLegacyClaims(userID, email)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateLegacyToken validates a self-issued token using HMAC signing.
// Non-HMAC signing methods are rejected outright.
func ValidateLegacyToken(tokenString, secret string) (*LegacyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LegacyClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*LegacyClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
