package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"comer/internal/id"

	"aidanwoods.dev/go-paseto"
)

const (
	tokenIssuer   = "comer-api"
	tokenAudience = "comer-web"

	refreshTokenSize = 32
	emailTokenSize   = 24
)

// Claims identify the caller of an authenticated request.
type Claims struct {
	UserID  string
	Email   string
	TokenID string
}

// TokenService issues PASETO v4.local access tokens and opaque refresh tokens.
type TokenService struct {
	key        paseto.V4SymmetricKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService takes the 32 byte symmetric key (config.SessionConfig.Key).
func NewTokenService(key []byte, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	k, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create PASETO symmetric key: %w", err)
	}
	return &TokenService{key: k, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}, nil
}

func (s *TokenService) GenerateAccessToken(userID, email string) (string, error) {
	now := s.now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetSubject(userID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(s.accessTTL))

	jti, err := id.Generate(id.PrefixToken)
	if err != nil {
		return "", err
	}
	token.SetJti(jti)
	if err := token.SetString("email", email); err != nil {
		return "", fmt.Errorf("set email claim: %w", err)
	}

	return token.V4Encrypt(s.key, nil), nil
}

// VerifyAccessToken decrypts the token and checks issuer, audience and expiry.
func (s *TokenService) VerifyAccessToken(tokenString string) (*Claims, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.key, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var c Claims
	if c.UserID, err = token.GetSubject(); err != nil {
		return nil, fmt.Errorf("invalid token subject: %w", err)
	}
	if c.Email, err = token.GetString("email"); err != nil {
		return nil, fmt.Errorf("invalid token email: %w", err)
	}
	c.TokenID, _ = token.GetJti()
	return &c, nil
}

// GenerateRefreshToken returns a random url-safe token. Only its hash is stored.
func (s *TokenService) GenerateRefreshToken() (string, error) {
	return randomToken(refreshTokenSize)
}

// GenerateEmailToken returns the one-time verification token sent after signup.
func GenerateEmailToken() (string, error) {
	return randomToken(emailTokenSize)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken is the storage form of a refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }
