package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// Cache wraps a synthesizer with a two-tier (memory + disk) store keyed
// by sha256(voice + ":" + text). Fixed lines such as the greeting are
// synthesized once.
//
// The disk layer is read whenever dir is set; new entries are only
// persisted when diskWrite is true.
type Cache struct {
	next      domain.TextToSpeech
	voice     string
	dir       string
	diskWrite bool
	log       *logger.Logger

	mu      sync.RWMutex
	entries map[string][]byte
	hits    int64
	misses  int64
}

var _ domain.TextToSpeech = (*Cache)(nil)

// NewCache wraps next. An empty dir disables the disk layer.
func NewCache(next domain.TextToSpeech, voice, dir string, diskWrite bool, log *logger.Logger) *Cache {
	if dir != "" && diskWrite {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("tts cache: failed to create %s: %v", dir, err)
		}
	}
	return &Cache{
		next:      next,
		voice:     voice,
		dir:       dir,
		diskWrite: diskWrite,
		log:       log,
		entries:   make(map[string][]byte),
	}
}

// ContentType is the wrapped synthesizer's.
func (c *Cache) ContentType() string { return c.next.ContentType() }

// Synthesize returns cached audio or synthesizes and stores it.
func (c *Cache) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if data, ok := c.get(text); ok {
		return data, nil
	}
	data, err := c.next.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(text, data)
	return data, nil
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) get(text string) ([]byte, bool) {
	key := c.key(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.entries[key]; ok {
		c.hits++
		c.log.Debug("tts cache hit (mem): %s", truncate(text, 40))
		return data, true
	}
	if c.dir != "" {
		if data, err := os.ReadFile(c.path(key)); err == nil {
			c.entries[key] = data
			c.hits++
			c.log.Debug("tts cache hit (disk): %s", truncate(text, 40))
			return data, true
		}
	}
	c.misses++
	return nil, false
}

func (c *Cache) put(text string, data []byte) {
	key := c.key(text)

	c.mu.Lock()
	c.entries[key] = data
	c.mu.Unlock()

	if c.dir == "" || !c.diskWrite {
		return
	}
	if err := os.WriteFile(c.path(key), data, 0o644); err != nil {
		c.log.Error("tts cache: disk write failed: %v", err)
	}
}

func (c *Cache) key(text string) string {
	h := sha256.Sum256([]byte(c.voice + ":" + text))
	return hex.EncodeToString(h[:])
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".audio")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
