package dispatch

import "sync"

// Ledger counts failed remote attempts per segment ID.
type Ledger struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewLedger() *Ledger {
	return &Ledger{counts: make(map[string]int)}
}

// Increment records one more failure for id and returns the new count.
func (l *Ledger) Increment(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[id]++
	return l.counts[id]
}

func (l *Ledger) Get(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[id]
}

// Seed raises the count for id to n. Counts never go down.
func (l *Ledger) Seed(id string, n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > l.counts[id] {
		l.counts[id] = n
	}
}

func (l *Ledger) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, id)
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counts)
}
