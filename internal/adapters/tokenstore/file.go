package tokenstore

// Package tokenstore provides token persistence adapters. Stores hold the
// token pair only; the user profile is deliberately never persisted, so a
// stale cached role can never grant stale privileges.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	"github.com/canvango/canvango-group/internal/ports"
)

// fileFormat is the on-disk shape. Key names match the storage keys the
// web client used, so nothing but tokens ever lands on disk.
type fileFormat struct {
	AuthToken    string    `json:"authToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// FileStore persists the token pair to a JSON file with owner-only
// permissions. It can watch the file for external changes so a logout in one
// process propagates to others sharing the same store.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last domainauth.Session // last state seen through this store
}

var (
	_ ports.TokenStore   = (*FileStore)(nil)
	_ ports.StoreWatcher = (*FileStore)(nil)
)

// FileStoreOptions configures a FileStore.
type FileStoreOptions struct {
	// Path of the token file. Empty means $HOME/.canvango/tokens.json.
	Path string
	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger
}

// NewFileStore creates the store and its parent directory.
func NewFileStore(opts FileStoreOptions) (*FileStore, error) {
	path := opts.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, ".canvango", "tokens.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{path: path, logger: logger}
	if sess, err := s.read(); err == nil {
		s.last = sess
	}
	return s, nil
}

func (s *FileStore) Load(_ context.Context) (domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.read()
	if err != nil {
		return domainauth.Session{}, err
	}
	s.last = sess
	return sess, nil
}

func (s *FileStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.IsZero() {
		return errors.New("refusing to save empty session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(fileFormat{
		AuthToken:    sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	// Write-then-rename keeps a concurrent reader from seeing a torn file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}

	s.last = sess
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = domainauth.Session{}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// read loads the session from disk without taking the lock.
func (s *FileStore) read() (domainauth.Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domainauth.Session{}, nil
		}
		return domainauth.Session{}, fmt.Errorf("read token file: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return domainauth.Session{}, fmt.Errorf("parse token file: %w", err)
	}
	return domainauth.Session{
		AccessToken:  f.AuthToken,
		RefreshToken: f.RefreshToken,
		ExpiresAt:    f.ExpiresAt,
	}, nil
}

// Watch reports external token changes until ctx is done. Events caused by
// this store's own Save/Clear calls are filtered out by comparing against the
// last state seen through this store. A zero session on the channel means the
// tokens were cleared elsewhere.
func (s *FileStore) Watch(ctx context.Context) (<-chan domainauth.Session, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}

	// Watch the directory: editors and this store replace the file by
	// rename, which drops a watch set on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch token dir: %w", err)
	}

	out := make(chan domainauth.Session, 1)
	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if sess, changed := s.reloadIfChanged(); changed {
					select {
					case out <- sess:
					case <-ctx.Done():
						return
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("token file watch error", "error", err)
			}
		}
	}()
	return out, nil
}

// reloadIfChanged re-reads the file and reports whether the stored session
// differs from the last state seen through this store.
func (s *FileStore) reloadIfChanged() (domainauth.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.read()
	if err != nil {
		s.logger.Warn("token file reload failed", "error", err)
		return domainauth.Session{}, false
	}
	if sess == s.last {
		return domainauth.Session{}, false
	}
	s.last = sess
	return sess, true
}
