// Package storage persists the entry signs that close decisions depend
// on, in a JSON file beside the bot's data directory. A lost sign means
// a pair can never be closed by sign reversal, so every mutation is
// written through to disk atomically.
package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// SignRecord holds the direction signs captured when a pair was opened.
// Funding is always -1 or +1. Price is 0 only for records loaded from
// the legacy file format, until SetPriceSign backfills it.
type SignRecord struct {
	Funding int `json:"funding"`
	Price   int `json:"price,omitempty"`
}

// UnmarshalJSON accepts both the record form {"funding":1,"price":-1}
// and the legacy bare integer form used by earlier deployments.
func (r *SignRecord) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		r.Funding = n
		r.Price = 0
		return nil
	}
	type plain SignRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = SignRecord(p)
	return nil
}

// SignStore is the JSON-file implementation of Interface.
type SignStore struct {
	mu     sync.RWMutex
	path   string
	logger *log.Logger
	signs  map[string]SignRecord
}

// NewSignStore opens the store at path, creating the parent directory
// if needed. A missing file starts empty; an unreadable or corrupt file
// also starts empty, with the error logged, so a damaged file cannot
// keep the bot from trading.
func NewSignStore(path string, logger *log.Logger) (*SignStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating sign store directory: %w", err)
		}
	}
	s := &SignStore{
		path:   path,
		logger: logger,
		signs:  make(map[string]SignRecord),
	}
	s.load()
	return s, nil
}

func (s *SignStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Printf("sign store: reading %s: %v; starting empty", s.path, err)
		}
		return
	}
	signs := make(map[string]SignRecord)
	if err := json.Unmarshal(data, &signs); err != nil {
		s.logger.Printf("sign store: corrupt file %s: %v; starting empty", s.path, err)
		return
	}
	s.signs = signs
	s.logger.Printf("sign store: loaded %d record(s) from %s", len(signs), s.path)
}

// save writes the current map to disk. Callers must hold the write lock.
func (s *SignStore) save() error {
	data, err := json.MarshalIndent(s.signs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling signs: %w", err)
	}

	// Write to temp file first
	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("writing sign store: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpFile, s.path); err != nil {
		return fmt.Errorf("replacing sign store: %w", err)
	}
	return nil
}

// Get returns the stored signs for a symbol.
func (s *SignStore) Get(symbol string) (SignRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.signs[symbol]
	return rec, ok
}

// Set records both signs for a symbol and persists immediately.
func (s *SignStore) Set(symbol string, rec SignRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signs[symbol] = rec
	return s.save()
}

// SetPriceSign backfills the price sign on an existing record. It is a
// no-op for symbols with no stored funding sign.
func (s *SignStore) SetPriceSign(symbol string, sign int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.signs[symbol]
	if !ok {
		return nil
	}
	rec.Price = sign
	s.signs[symbol] = rec
	return s.save()
}

// Clear removes a symbol's record and persists. Clearing an absent
// symbol is a no-op.
func (s *SignStore) Clear(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signs[symbol]; !ok {
		return nil
	}
	delete(s.signs, symbol)
	return s.save()
}

// All returns a copy of every stored record.
func (s *SignStore) All() map[string]SignRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]SignRecord, len(s.signs))
	for k, v := range s.signs {
		out[k] = v
	}
	return out
}

// Symbols returns the stored symbols in sorted order.
func (s *SignStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.signs))
	for k := range s.signs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
