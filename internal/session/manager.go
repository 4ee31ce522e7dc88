package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"cuadre/internal/core"
)

const (
	cookieName = "cuadre"
	sidKey     = "sid"
)

type ManagerConfig struct {
	// Secret signs the cookie. An empty secret gets a random per-process key,
	// which logs everyone out on restart.
	Secret []byte
	TTL    time.Duration
	Secure bool
	// Locker is optional; without it concurrent requests of one session may
	// overwrite each other's additions.
	Locker Locker
}

// Manager binds requests to forms through a signed session cookie.
type Manager struct {
	cookies *sessions.CookieStore
	store   Store
	locker  Locker
}

func NewManager(store Store, cfg ManagerConfig) (*Manager, error) {
	secret := cfg.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
		slog.Warn("SESSION_SECRET not set; using a random key for this process")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	cookies := sessions.NewCookieStore(secret)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{cookies: cookies, store: store, locker: cfg.Locker}, nil
}

// SessionID returns the id carried by the request cookie, issuing a new one
// (and setting the cookie) when it is missing or fails verification.
func (m *Manager) SessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	// A decode error still yields a usable new session.
	sess, err := m.cookies.Get(r, cookieName)
	if err != nil {
		slog.DebugContext(r.Context(), "Discarding invalid session cookie", "error", err)
	}
	if id, ok := sess.Values[sidKey].(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	sess.Values[sidKey] = id
	if err := sess.Save(r, w); err != nil {
		return "", fmt.Errorf("write session cookie: %w", err)
	}
	return id, nil
}

// Load returns the session id and a copy of its form.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (string, *core.Form, error) {
	id, err := m.SessionID(w, r)
	if err != nil {
		return "", nil, err
	}
	f, err := m.store.Load(r.Context(), id)
	if err != nil {
		return id, nil, err
	}
	return id, f, nil
}

func (m *Manager) Save(ctx context.Context, id string, f *core.Form) error {
	return m.store.Save(ctx, id, f)
}

// Reset discards the session's form.
func (m *Manager) Reset(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// Update runs fn on the session's form under the session lock and stores the
// result. The form is returned even when fn fails, so callers can render it.
// A store failure after fn succeeded is a *WriteError; after fn failed, fn's
// error wins.
func (m *Manager) Update(w http.ResponseWriter, r *http.Request, fn func(*core.Form) error) (*core.Form, error) {
	id, err := m.SessionID(w, r)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "cuadre:session-lock:"+id)
		if err != nil {
			return nil, fmt.Errorf("lock session: %w", err)
		}
		defer unlock()
	}

	f, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	fnErr := fn(f)
	if err := m.store.Save(ctx, id, f); err != nil {
		if fnErr != nil {
			slog.WarnContext(ctx, "Failed to store session form", "session_id", id, "error", err)
			return f, fnErr
		}
		return f, &WriteError{Err: err}
	}
	return f, fnErr
}
