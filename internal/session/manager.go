// Package session identifies visitors through a signed, optionally encrypted cookie. The visitor
// identifier namespaces every value the wizard stores.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	defaultCookieName  = "orderflow_session"
	defaultLifetime    = 24 * time.Hour
	defaultIdleTimeout = 30 * time.Minute
)

// ErrExpired reports that a decoded session passed its idle or absolute limit.
var ErrExpired = errors.New("session expired")

// ErrInvalidConfig reports missing or malformed manager options.
var ErrInvalidConfig = errors.New("session: invalid config")

// Data is the cookie payload.
type Data struct {
	VisitorID  string    `json:"vid"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Config controls cookie encoding and lifetime.
type Config struct {
	CookieName  string
	HashKey     []byte
	BlockKey    []byte
	Secure      bool
	IdleTimeout time.Duration
	Lifetime    time.Duration
	Now         func() time.Time
}

// Session is the per-request view of the cookie.
type Session struct {
	data  Data
	fresh bool
}

// VisitorID returns the stable visitor identifier.
func (s *Session) VisitorID() string { return s.data.VisitorID }

// Fresh reports whether the session was created during this request.
func (s *Session) Fresh() bool { return s.fresh }

// Manager loads and saves sessions.
type Manager struct {
	cfg   Config
	codec *securecookie.SecureCookie
}

// NewManager validates cfg and builds the cookie codec.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) < 32 {
		return nil, fmt.Errorf("%w: hash key must be at least 32 bytes", ErrInvalidConfig)
	}
	switch len(cfg.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes", ErrInvalidConfig)
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultLifetime
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.Lifetime.Seconds()))
	return &Manager{cfg: cfg, codec: codec}, nil
}

// EphemeralKeys returns random hash and block keys for local runs without configured secrets.
// Sessions do not survive a restart when these are used.
func EphemeralKeys() (hash, block []byte) {
	return securecookie.GenerateRandomKey(64), securecookie.GenerateRandomKey(32)
}

// Load decodes the request cookie. A missing or tampered cookie yields a fresh session; an
// expired one yields a fresh session together with ErrExpired.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	now := m.cfg.Now().UTC()
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return m.newSession(now), nil
	}
	var data Data
	if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &data); err != nil || data.VisitorID == "" {
		return m.newSession(now), nil
	}
	if now.After(data.ExpiresAt) || now.Sub(data.LastActive) > m.cfg.IdleTimeout {
		return m.newSession(now), ErrExpired
	}
	return &Session{data: data}, nil
}

// Save refreshes the idle timer and writes the cookie.
func (m *Manager) Save(w http.ResponseWriter, s *Session) error {
	if s == nil {
		return errors.New("session: nil session")
	}
	now := m.cfg.Now().UTC()
	s.data.LastActive = now
	encoded, err := m.codec.Encode(m.cfg.CookieName, s.data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	maxAge := int(s.data.ExpiresAt.Sub(now).Round(time.Second).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  s.data.ExpiresAt,
		MaxAge:   maxAge,
		Secure:   m.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
