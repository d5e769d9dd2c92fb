package lifecycle

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/christopherklint97/daylog/internal/ai"
	"github.com/christopherklint97/daylog/internal/pm"
)

// CacheVersion is bumped whenever the payload shape changes. Entries written
// under another version are discarded on read.
const CacheVersion = 1

// KV is the durable string store behind the cache. *store.DB implements it.
type KV interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
	DeleteState(key string) error
}

// Snapshot is what the cache keeps per date.
type Snapshot struct {
	Suggestions []ai.Suggestion            `json:"suggestions"`
	Context     *pm.Context                `json:"context,omitempty"`
	Results     map[string]pm.SubmitResult `json:"results,omitempty"`
	State       State                      `json:"state"`
}

type envelope struct {
	Version int             `json:"version"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// StateCache stores one Snapshot per date inside a versioned envelope.
type StateCache struct {
	kv     KV
	logger *slog.Logger
}

func NewStateCache(kv KV, logger *slog.Logger) *StateCache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StateCache{kv: kv, logger: logger}
}

func cacheKey(date string) string { return "suggestions:" + date }

// Load returns the snapshot for date. A missing, unreadable, or mismatched
// entry is a miss; mismatched entries are deleted.
func (c *StateCache) Load(date string) (*Snapshot, bool) {
	key := cacheKey(date)
	raw, err := c.kv.GetState(key)
	if err != nil {
		c.logger.Warn("reading suggestion cache failed", "date", date, "error", err)
		return nil, false
	}
	if raw == "" {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Version != CacheVersion || env.Key != key {
		c.logger.Debug("discarding suggestion cache entry", "date", date, "version", env.Version)
		c.discard(key)
		return nil, false
	}

	var snap Snapshot
	if err := json.Unmarshal(env.Payload, &snap); err != nil {
		c.discard(key)
		return nil, false
	}
	return &snap, true
}

func (c *StateCache) Save(date string, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	key := cacheKey(date)
	data, err := json.Marshal(envelope{Version: CacheVersion, Key: key, Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	if err := c.kv.SetState(key, string(data)); err != nil {
		return fmt.Errorf("writing suggestion cache: %w", err)
	}
	return nil
}

func (c *StateCache) Delete(date string) error {
	return c.kv.DeleteState(cacheKey(date))
}

func (c *StateCache) discard(key string) {
	if err := c.kv.DeleteState(key); err != nil {
		c.logger.Warn("deleting suggestion cache entry failed", "key", key, "error", err)
	}
}
