package session

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"patientsync/pkg/interfaces"
)

const issuer = "patientsync"

// Config holds cookie session settings. An empty Secret makes New generate
// a random one, which invalidates all sessions on restart.
type Config struct {
	CookieName string
	TTL        time.Duration
	Secret     []byte
	Secure     bool
}

func DefaultConfig() Config {
	return Config{
		CookieName: "PatientSyncAuthCookie",
		TTL:        30 * time.Minute,
	}
}

type claims struct {
	UserID   int    `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager issues HS256 session tokens and tracks logouts until the revoked
// tokens would have expired anyway.
type Manager struct {
	cfg     Config
	secret  []byte
	now     func() time.Time
	logger  *zap.Logger
	revoked map[string]time.Time // token ID -> expiry
	mu      sync.Mutex
}

var _ interfaces.SessionManager = (*Manager)(nil)

func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, ErrInvalidTTL
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultConfig().CookieName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session")

	secret := cfg.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		logger.Warn("no session secret configured, using an ephemeral one")
	}

	return &Manager{
		cfg:     cfg,
		secret:  secret,
		now:     time.Now,
		logger:  logger,
		revoked: make(map[string]time.Time),
	}, nil
}

func (m *Manager) CookieName() string {
	return m.cfg.CookieName
}

// Issue signs a token for the user valid for the configured TTL.
func (m *Manager) Issue(userID int, username string) (string, time.Time, error) {
	if userID <= 0 || username == "" {
		return "", time.Time{}, ErrInvalidUser
	}

	now := m.now()
	expires := now.Add(m.cfg.TTL)
	c := claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, expires, nil
}

// Validate returns the principal behind token. Every failure wraps
// interfaces.ErrUnauthorized.
func (m *Manager) Validate(token string) (interfaces.Principal, error) {
	c, err := m.parse(token)
	if err != nil {
		return interfaces.Principal{}, fmt.Errorf("%w: %v", interfaces.ErrUnauthorized, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	if _, revoked := m.revoked[c.ID]; revoked {
		return interfaces.Principal{}, fmt.Errorf("%w: %v", interfaces.ErrUnauthorized, ErrTokenRevoked)
	}

	return interfaces.Principal{UserID: c.UserID, Username: c.Username}, nil
}

// Revoke invalidates token until its natural expiry. Invalid tokens are
// ignored.
func (m *Manager) Revoke(token string) {
	c, err := m.parse(token)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	m.revoked[c.ID] = c.ExpiresAt.Time
	m.logger.Debug("session revoked", zap.String("username", c.Username))
}

// RevokedCount reports the tokens currently held in the revocation set.
func (m *Manager) RevokedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	return len(m.revoked)
}

func (m *Manager) parse(token string) (*claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{},
		func(*jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.ID == "" || c.UserID <= 0 {
		return nil, ErrMalformedToken
	}
	return c, nil
}

func (m *Manager) pruneLocked() {
	now := m.now()
	for id, expiry := range m.revoked {
		if !now.Before(expiry) {
			delete(m.revoked, id)
		}
	}
}
