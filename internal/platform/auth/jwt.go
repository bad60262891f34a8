package auth

import (
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/config"
	"quotr/internal/platform/models"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	issuer = "quotr"
)

// Claims identify a session. Role and organisation are informational; the
// API resolves the caller's current values from the directory.
type Claims struct {
	UserID         string      `json:"uid"`
	Username       string      `json:"usr"`
	Role           models.Role `json:"role"`
	OrganisationID string      `json:"oid,omitempty"`
	TokenType      string      `json:"typ"`
	jwt.RegisteredClaims
}

type TokenService struct {
	config config.JWTConfig
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 24 * time.Hour
	}
	return &TokenService{config: cfg}
}

func (s *TokenService) RefreshTTL() time.Duration {
	return s.config.RefreshTokenTTL
}

func (s *TokenService) GenerateAccessToken(user *models.User) (string, error) {
	token, _, err := s.generate(user, TokenTypeAccess, s.config.AccessTokenTTL)
	return token, err
}

// GenerateRefreshToken returns the signed token and its id.
func (s *TokenService) GenerateRefreshToken(user *models.User) (string, string, error) {
	return s.generate(user, TokenTypeRefresh, s.config.RefreshTokenTTL)
}

func (s *TokenService) generate(user *models.User, tokenType string, ttl time.Duration) (string, string, error) {
	now := time.Now()
	id := uuid.New().String()

	claims := Claims{
		UserID:         user.ID,
		Username:       user.Username,
		Role:           user.Role,
		OrganisationID: user.OrganisationID,
		TokenType:      tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", "", err
	}
	return signed, id, nil
}

// ValidateToken checks signature, expiry and token type.
func (s *TokenService) ValidateToken(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, stderrors.New("unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Wrap(errors.ErrUnauthenticated, "token expired")
		}
		return nil, errors.Wrap(errors.ErrUnauthenticated, "invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.Wrap(errors.ErrUnauthenticated, "invalid token")
	}
	if claims.TokenType != tokenType {
		return nil, errors.Wrap(errors.ErrUnauthenticated, "wrong token type")
	}

	return claims, nil
}
