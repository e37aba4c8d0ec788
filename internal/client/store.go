//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/pribylovaa/go-taskboard/internal/client TokenStore,Refresher

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/pribylovaa/go-taskboard/internal/tokens"
)

// DefaultRefreshTTL - срок хранения непрозрачного refresh-токена,
// если из него нельзя прочитать exp.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// Tokens - текущая пара токенов клиента.
type Tokens struct {
	Access  string `json:"accessToken,omitempty"`
	Refresh string `json:"refreshToken,omitempty"`
}

func (t Tokens) Empty() bool { return t.Access == "" && t.Refresh == "" }

// TokenStore - единственный источник текущих токенов клиента.
type TokenStore interface {
	Get(ctx context.Context) (Tokens, error)
	Set(ctx context.Context, t Tokens) error
	Clear(ctx context.Context) error
}

const (
	keyAccess  = "access"
	keyRefresh = "refresh"
)

// MemoryStore хранит токены в ttlcache: запись живёт ровно столько,
// сколько сам токен (по exp), и исчезает без явной очистки.
type MemoryStore struct {
	cache *ttlcache.Cache[string, string]
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
		now: time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context) (Tokens, error) {
	return Tokens{
		Access:  s.value(keyAccess),
		Refresh: s.value(keyRefresh),
	}, nil
}

func (s *MemoryStore) value(key string) string {
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return ""
	}

	return item.Value()
}

// Set заменяет обе записи. Уже истёкший access-токен не сохраняется.
func (s *MemoryStore) Set(_ context.Context, t Tokens) error {
	s.cache.DeleteAll()

	now := s.now()
	if t.Access != "" {
		if ttl, ok := tokens.RemainingLifetime(t.Access, now); !ok {
			s.cache.Set(keyAccess, t.Access, ttlcache.NoTTL)
		} else if ttl > 0 {
			s.cache.Set(keyAccess, t.Access, ttl)
		}
	}

	if t.Refresh != "" {
		ttl, ok := tokens.RemainingLifetime(t.Refresh, now)
		if !ok {
			ttl = DefaultRefreshTTL
		}
		if ttl > 0 {
			s.cache.Set(keyRefresh, t.Refresh, ttl)
		}
	}

	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.cache.DeleteAll()
	return nil
}

// FileStore хранит токены в JSON-файле с правами 0600.
// Подходит для CLI: сессия переживает перезапуск процесса.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath - ~/.taskctl/tokens.json.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".taskctl", "tokens.json"), nil
}

func (s *FileStore) Get(_ context.Context) (Tokens, error) {
	const op = "client.FileStore.Get"

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Tokens{}, nil
	}
	if err != nil {
		return Tokens{}, fmt.Errorf("%s: %w", op, err)
	}

	var t Tokens
	if err := json.Unmarshal(raw, &t); err != nil {
		return Tokens{}, fmt.Errorf("%s: decode: %w", op, err)
	}

	return t, nil
}

// Set пишет через временный файл и rename, чтобы не оставить
// полузаписанный файл при падении.
func (s *FileStore) Set(_ context.Context, t Tokens) error {
	const op = "client.FileStore.Set"

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%s: mkdir: %w", op, err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("%s: temp: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: chmod: %w", op, err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: write: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: close: %w", op, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%s: rename: %w", op, err)
	}

	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	const op = "client.FileStore.Clear"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
