package auth

import (
	"errors"
	"time"

	"arena-service/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongScope   = errors.New("token scope not allowed")
)

const (
	ScopeUser  = "user"
	ScopeAdmin = "admin"
)

// Claims are issued by the identity layer. SubjectID is the opaque user id
// the engine keys everything on.
type Claims struct {
	SubjectID string `json:"subjectId"`
	Scope     string `json:"scope"`
	jwt.RegisteredClaims
}

func GenerateToken(userID string) (string, error) {
	return generateToken(userID, ScopeUser)
}

func GenerateAdminToken(adminID string) (string, error) {
	return generateToken(adminID, ScopeAdmin)
}

func generateToken(subjectID, scope string) (string, error) {
	duration := time.Duration(config.GlobalConfig.JWT.Expire) * time.Hour
	claims := Claims{
		SubjectID: subjectID,
		Scope:     scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   subjectID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.GlobalConfig.JWT.Secret))
}

func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(config.GlobalConfig.JWT.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SubjectID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseUserToken accepts user tokens. Admin tokens act as users too, so
// operators can use the guest endpoints.
func ParseUserToken(tokenString string) (*Claims, error) {
	claims, err := ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != ScopeUser && claims.Scope != ScopeAdmin {
		return nil, ErrWrongScope
	}
	return claims, nil
}

func ParseAdminToken(tokenString string) (*Claims, error) {
	claims, err := ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != ScopeAdmin {
		return nil, ErrWrongScope
	}
	return claims, nil
}
