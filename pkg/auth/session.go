package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// SessionCookieName is the cookie holding the signed login session.
	SessionCookieName = "publishgate_session"

	sessionIssuer = "publishgate"
	// DefaultSessionTTL bounds how long a browser login is remembered.
	DefaultSessionTTL = 24 * time.Hour
)

// ErrInvalidSession indicates a session cookie failed verification.
var ErrInvalidSession = errors.New("invalid session")

// Session is the state kept for a browser on the login website.
type Session struct {
	Login         string `json:"login,omitempty"`
	OTT           string `json:"ott,omitempty"`
	Flash         string `json:"flash,omitempty"`
	LoginRedirect string `json:"loginRedirect,omitempty"`
}

// Authenticated reports whether a GitHub login completed for this session.
func (s *Session) Authenticated() bool {
	return s != nil && s.Login != ""
}

type sessionClaims struct {
	Session
	jwt.RegisteredClaims
}

// SessionManager stores sessions in an HS256 signed cookie.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewSessionManager creates a manager. secure marks the cookie Secure and
// should be set whenever the site is served over https.
func NewSessionManager(secret string, ttl time.Duration, secure bool) (*SessionManager, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		secure: secure,
		now:    time.Now,
	}, nil
}

// Encode signs the session into a cookie value.
func (m *SessionManager) Encode(s *Session) (string, error) {
	now := m.now().UTC()
	claims := sessionClaims{
		Session: *s,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   s.Login,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Decode verifies a cookie value and returns the session it carries.
func (m *SessionManager) Decode(value string) (*Session, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	s := claims.Session
	return &s, nil
}

// Load returns the request's session, or an empty one when the cookie is
// missing or fails verification.
func (m *SessionManager) Load(r *http.Request) *Session {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return &Session{}
	}
	s, err := m.Decode(c.Value)
	if err != nil {
		return &Session{}
	}
	return s
}

// Save writes the session cookie.
func (m *SessionManager) Save(w http.ResponseWriter, s *Session) error {
	value, err := m.Encode(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the session cookie.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
