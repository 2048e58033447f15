package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/xiaoyuanzhu-com/buildchat/log"
)

// FileStore keeps the auth token in a file. With Watch enabled the token is
// cached and refreshed whenever another process rewrites the file.
type FileStore struct {
	path string

	mu      sync.RWMutex
	token   string
	cached  bool
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileStore creates a store for the token file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path)}
}

// Path returns the token file location
func (s *FileStore) Path() string {
	return s.path
}

// Token implements TokenProvider
func (s *FileStore) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.cached {
		tok := s.token
		s.mu.RUnlock()
		if tok == "" {
			return "", ErrNoToken
		}
		return tok, nil
	}
	s.mu.RUnlock()

	return s.read()
}

func (s *FileStore) read() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Save writes the token with owner-only permissions
func (s *FileStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return err
	}
	s.setCached(strings.TrimSpace(token))
	return nil
}

// Clear removes the token file
func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.setCached("")
	return nil
}

func (s *FileStore) setCached(tok string) {
	s.mu.Lock()
	if s.cached {
		s.token = tok
	}
	s.mu.Unlock()
}

// Watch starts caching the token and reloads it on file changes.
// The parent directory is watched so the file may be created later.
func (s *FileStore) Watch() error {
	s.mu.Lock()
	if s.watcher != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}

	tok, err := s.read()
	if err != nil && !errors.Is(err, ErrNoToken) {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to read token file")
	}

	s.mu.Lock()
	s.watcher = w
	s.token = tok
	s.cached = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.eventLoop(w)

	log.Debug().Str("path", s.path).Msg("watching token file")
	return nil
}

func (s *FileStore) eventLoop(w *fsnotify.Watcher) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			tok, err := s.read()
			if err != nil && !errors.Is(err, ErrNoToken) {
				log.Warn().Err(err).Str("path", s.path).Msg("failed to reload token file")
				continue
			}
			s.mu.Lock()
			s.token = tok
			s.mu.Unlock()
			log.Debug().Str("op", event.Op.String()).Bool("present", tok != "").Msg("token file changed")
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("token watcher error")
		}
	}
}

// Close stops watching
func (s *FileStore) Close() error {
	s.mu.Lock()
	w := s.watcher
	done := s.done
	s.watcher = nil
	s.cached = false
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	close(done)
	err := w.Close()
	s.wg.Wait()
	return err
}
