package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultLedgerTTL bounds how long a login may sit at the provider before
// its state is discarded.
const DefaultLedgerTTL = 10 * time.Minute

// ledgerSweepInterval is the minimum time between full expiry sweeps.
const ledgerSweepInterval = time.Minute

// Ledger maps a CSRF state to the PKCE verifier issued with it. Take is
// read-then-delete: of any number of concurrent takers for one state, at most
// one receives the verifier.
type Ledger interface {
	Put(ctx context.Context, state, verifier string) error
	Take(ctx context.Context, state string) (verifier string, ok bool, err error)
}

type ledgerEntry struct {
	verifier  string
	expiresAt time.Time
}

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]ledgerEntry
	ttl     time.Duration
	now     func() time.Time
	swept   time.Time
}

// NewMemoryLedger returns an empty ledger. ttl <= 0 selects DefaultLedgerTTL.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &MemoryLedger{
		entries: make(map[string]ledgerEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *MemoryLedger) Put(_ context.Context, state, verifier string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweepLocked(now)
	l.entries[state] = ledgerEntry{verifier: verifier, expiresAt: now.Add(l.ttl)}
	return nil
}

func (l *MemoryLedger) Take(_ context.Context, state string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweepLocked(now)

	e, ok := l.entries[state]
	if !ok {
		return "", false, nil
	}
	delete(l.entries, state)
	if now.After(e.expiresAt) {
		return "", false, nil
	}
	return e.verifier, true, nil
}

// Len returns the number of live entries.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(l.now())
	return len(l.entries)
}

// maybeSweepLocked drops expired entries at most once per
// ledgerSweepInterval. Take checks the expiry of the entry it finds, so
// entries left between sweeps are never handed out.
func (l *MemoryLedger) maybeSweepLocked(now time.Time) {
	if now.Sub(l.swept) < ledgerSweepInterval {
		return
	}
	l.sweepLocked(now)
}

func (l *MemoryLedger) sweepLocked(now time.Time) {
	l.swept = now
	for state, e := range l.entries {
		if now.After(e.expiresAt) {
			delete(l.entries, state)
		}
	}
}
