package security

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer  = "gpu-notebook-bridge"
	subject = "controller"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// ControllerClaims is what the controller presents to workers.
type ControllerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager mints and verifies HS256 tokens shared by the controller and
// its workers. A manager with an empty secret is disabled.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu     sync.Mutex
	cached string
	expiry time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *TokenManager) Enabled() bool { return m != nil && len(m.secret) > 0 }

func (m *TokenManager) Mint() (string, error) {
	now := m.now()
	claims := ControllerClaims{
		Role: "controller",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Token returns a cached token, minting a new one when less than a fifth of
// its lifetime is left.
func (m *TokenManager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != "" && m.now().Before(m.expiry.Add(-m.ttl/5)) {
		return m.cached, nil
	}
	tok, err := m.Mint()
	if err != nil {
		return "", err
	}
	m.cached = tok
	m.expiry = m.now().Add(m.ttl)
	return tok, nil
}

func (m *TokenManager) Parse(tok string) (*ControllerClaims, error) {
	claims := &ControllerClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseFromRequest reads `Authorization: Bearer <jwt>`.
func (m *TokenManager) ParseFromRequest(r *http.Request) (*ControllerClaims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, ErrMissingToken
	}
	return m.Parse(strings.TrimSpace(hdr[7:]))
}
