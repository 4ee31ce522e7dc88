// Package session keeps one in-progress reconciliation form per browser
// session. The browser holds only a signed cookie with the session id; the
// form itself lives in a Store.
package session

import (
	"context"
	"fmt"

	"cuadre/internal/core"
)

// Store persists forms by session id. Implementations hand out copies, so a
// caller must Save after mutating.
type Store interface {
	// Load returns the stored form, or a fresh initialized one.
	Load(ctx context.Context, id string) (*core.Form, error)
	Save(ctx context.Context, id string, f *core.Form) error
	Delete(ctx context.Context, id string) error
}

// Locker serializes read-modify-write cycles on one session.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// WriteError reports a form that was updated in memory but could not be
// stored. The update itself succeeded, including any side effect it had.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store session form: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
