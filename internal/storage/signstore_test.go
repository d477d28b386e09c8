package storage

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) (*SignStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "funding_diff_signs.json")
	s, err := NewSignStore(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewSignStore: %v", err)
	}
	return s, path
}

func TestSignStoreRoundTrip(t *testing.T) {
	s, path := newTestStore(t)

	if err := s.Set("BTC", SignRecord{Funding: 1, Price: -1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("ETH", SignRecord{Funding: -1, Price: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// A fresh store over the same file sees the same records.
	reloaded, err := NewSignStore(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewSignStore reload: %v", err)
	}
	rec, ok := reloaded.Get("BTC")
	if !ok || rec.Funding != 1 || rec.Price != -1 {
		t.Errorf("BTC = %+v, %v; expected {1 -1}, true", rec, ok)
	}
	if symbols := reloaded.Symbols(); len(symbols) != 2 || symbols[0] != "BTC" || symbols[1] != "ETH" {
		t.Errorf("Symbols = %v", symbols)
	}
}

func TestSignStoreClear(t *testing.T) {
	s, path := newTestStore(t)

	if err := s.Set("BTC", SignRecord{Funding: 1, Price: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Clear("BTC"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := s.Get("BTC"); ok {
		t.Error("BTC should be gone after Clear")
	}
	// Clearing an absent symbol is a no-op.
	if err := s.Clear("DOGE"); err != nil {
		t.Fatalf("Clear absent: %v", err)
	}

	// The removal is durable.
	reloaded, _ := NewSignStore(path, log.New(io.Discard, "", 0))
	if _, ok := reloaded.Get("BTC"); ok {
		t.Error("BTC should be gone after reload")
	}
}

func TestSignStoreMissingFileStartsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	if all := s.All(); len(all) != 0 {
		t.Errorf("expected empty store, got %v", all)
	}
}

func TestSignStoreCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewSignStore(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewSignStore on corrupt file: %v", err)
	}
	if all := s.All(); len(all) != 0 {
		t.Errorf("expected empty store, got %v", all)
	}
	// The store still accepts writes afterwards.
	if err := s.Set("BTC", SignRecord{Funding: -1, Price: -1}); err != nil {
		t.Fatalf("Set after corrupt load: %v", err)
	}
}

func TestSignStoreLegacyFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signs.json")
	if err := os.WriteFile(path, []byte(`{"BTC": 1, "ETH": -1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewSignStore(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewSignStore: %v", err)
	}

	rec, ok := s.Get("BTC")
	if !ok || rec.Funding != 1 || rec.Price != 0 {
		t.Fatalf("legacy BTC = %+v, %v; expected funding 1, price unset", rec, ok)
	}

	// Backfilling the price sign upgrades the record in place.
	if err := s.SetPriceSign("BTC", -1); err != nil {
		t.Fatalf("SetPriceSign: %v", err)
	}
	rec, _ = s.Get("BTC")
	if rec.Funding != 1 || rec.Price != -1 {
		t.Errorf("upgraded BTC = %+v", rec)
	}

	// Backfill on an unknown symbol is a no-op.
	if err := s.SetPriceSign("DOGE", 1); err != nil {
		t.Fatalf("SetPriceSign absent: %v", err)
	}
	if _, ok := s.Get("DOGE"); ok {
		t.Error("SetPriceSign must not create records")
	}
}

func TestSignStoreWritesAreAtomic(t *testing.T) {
	s, path := newTestStore(t)
	if err := s.Set("BTC", SignRecord{Funding: 1, Price: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// No temp file lingers and the file on disk is complete JSON.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded map[string]SignRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("file on disk is not valid JSON: %v", err)
	}
	if decoded["BTC"].Funding != 1 {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestSignStoreAllReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Set("BTC", SignRecord{Funding: 1, Price: 1}); err != nil {
		t.Fatal(err)
	}
	all := s.All()
	all["BTC"] = SignRecord{Funding: -1, Price: -1}
	rec, _ := s.Get("BTC")
	if rec.Funding != 1 {
		t.Error("All must return a copy, not the live map")
	}
}
