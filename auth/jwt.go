package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/wfunc/bingoserver/errs"
)

// Identity is what a verified credential tells us about the connection.
type Identity struct {
	DisplayName string
	Host        bool
	ExpiresAt   time.Time
}

// PlayerClaims 玩家令牌中的声明
type PlayerClaims struct {
	jwt.StandardClaims
	PlayerName string `json:"playerName"`
	Host       bool   `json:"host,omitempty"`
}

// Signer issues and verifies HS256 player tokens.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret, issuer string, ttl time.Duration) *Signer {
	return &Signer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for displayName valid for the configured TTL.
func (s *Signer) Issue(displayName string, host bool) (string, error) {
	now := s.now()
	claims := PlayerClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   displayName,
			Issuer:    s.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
		PlayerName: displayName,
		Host:       host,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature, issuer and expiry.
func (s *Signer) Verify(tokenStr string) (Identity, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return Identity{}, errs.ErrAuthenticationRequired
	}

	claims := &PlayerClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, errs.ErrAuthenticationInvalid
	}

	if !claims.VerifyIssuer(s.issuer, true) {
		return Identity{}, errs.ErrAuthenticationInvalid
	}
	if !claims.VerifyExpiresAt(s.now().Unix(), true) {
		return Identity{}, errs.ErrAuthenticationInvalid
	}
	if claims.PlayerName == "" {
		return Identity{}, errs.ErrAuthenticationInvalid
	}

	return Identity{
		DisplayName: claims.PlayerName,
		Host:        claims.Host,
		ExpiresAt:   time.Unix(claims.ExpiresAt, 0),
	}, nil
}

// TokenFromRequest looks at the Authorization header, then the token and
// auth query parameters.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	q := r.URL.Query()
	if t := strings.TrimSpace(q.Get("token")); t != "" {
		return t
	}
	return strings.TrimSpace(q.Get("auth"))
}

// Authenticate 在升级连接之前校验请求中的令牌
func (s *Signer) Authenticate(r *http.Request) (Identity, error) {
	return s.Verify(TokenFromRequest(r))
}
