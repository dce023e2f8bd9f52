package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/tribunal/core"
)

const (
	tokenContextKey = "token"
	audience        = "Tribunal"
)

// Claims represents the authorization claims transmitted via a JWT.
// The identity provider is trusted: name, level and email are taken as they are.
type Claims struct {
	jwt.StandardClaims
	Name  string `json:"name,omitempty"`
	Level int    `json:"level"`
	Email string `json:"email,omitempty"`
}

func (c Claims) Author() core.Author {
	return core.Author{ID: c.Subject, Name: c.Name, Level: c.Level, Email: c.Email}
}

func (c Claims) Reviewer() core.Reviewer {
	return core.Reviewer{ID: c.Subject, Name: c.Name, Level: c.Level, Email: c.Email}
}

// NewClaims returns claims valid for ttl.
func NewClaims(issuer string, author core.Author, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   author.ID,
			Audience:  audience,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:  author.Name,
		Level: author.Level,
		Email: author.Email,
	}
}

func jwtConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(secretKey string, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok && claims.Subject != "" {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}
