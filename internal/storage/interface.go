package storage

// Interface defines the contract for entry-sign persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe and can safely call these methods from multiple
// goroutines.
//
// The provided SignStore implementation uses sync.RWMutex to serialize
// access, ensuring all Interface methods are protected for concurrent
// readers and writers.
type Interface interface {
	// Get returns the stored signs for a symbol.
	Get(symbol string) (SignRecord, bool)
	// Set records both direction signs for a symbol and persists.
	Set(symbol string, rec SignRecord) error
	// SetPriceSign backfills the price sign for a legacy record that
	// predates price-sign persistence.
	SetPriceSign(symbol string, sign int) error
	// Clear removes a symbol's signs after its pair is closed.
	Clear(symbol string) error
	// All returns a copy of every stored record.
	All() map[string]SignRecord
}

// Ensure SignStore implements Interface.
var _ Interface = (*SignStore)(nil)
