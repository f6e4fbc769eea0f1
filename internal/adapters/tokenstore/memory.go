package tokenstore

import (
	"context"
	"errors"
	"sync"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	"github.com/canvango/canvango-group/internal/ports"
)

// MemoryStore keeps the token pair in process memory only. Useful for tests
// and for ephemeral sessions that must not outlive the process.
type MemoryStore struct {
	mu   sync.Mutex
	sess domainauth.Session
}

var _ ports.TokenStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, nil
}

func (s *MemoryStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.IsZero() {
		return errors.New("refusing to save empty session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = domainauth.Session{}
	return nil
}
