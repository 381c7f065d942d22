package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/voci/internal/util/atomicwrite"
)

// fileClient implementa Client sobre un único archivo JSON.
// Cada Set/Delete reescribe el archivo completo de forma atómica.
type fileClient struct {
	path   string
	prefix string

	mu   sync.Mutex
	data map[string]fileEntry
}

type fileEntry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (e fileEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// NewFile abre (o crea al primer Set) el archivo de estado en path.
func NewFile(path, prefix string) (*fileClient, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("cache: file path is required")
	}
	c := &fileClient{path: path, prefix: prefix, data: make(map[string]fileEntry)}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *fileClient) load() error {
	b, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read state file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &c.data); err != nil {
		return fmt.Errorf("decode state file: %w", err)
	}
	return nil
}

func (c *fileClient) persistLocked() error {
	b, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	return atomicwrite.WriteFile(c.path, b, 0o600)
}

func (c *fileClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[prefixed(c.prefix, key)]
	if !ok || e.expired(time.Now()) {
		return nil, ErrNotFound
	}
	return e.Value, nil
}

func (c *fileClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := fileEntry{Value: value}
	if ttl > 0 {
		e.ExpiresAt = time.Now().Add(ttl)
	}
	c.data[prefixed(c.prefix, key)] = e
	return c.persistLocked()
}

func (c *fileClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := prefixed(c.prefix, key)
	if _, ok := c.data[k]; !ok {
		return nil
	}
	delete(c.data, k)
	return c.persistLocked()
}

func (c *fileClient) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Get(ctx, key)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (c *fileClient) Ping(ctx context.Context) error { return nil }

func (c *fileClient) Close() error { return nil }
