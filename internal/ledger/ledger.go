// Package ledger implements the credit accounting at the heart of the
// scheduler: a bounded signed accumulator of target-vs-realised precision
// error.
package ledger

import "sync"

// Ledger is a single-writer, read-many bounded accumulator of
// target_error - realised_error. It is advanced exactly once per decision
// tick, never per request.
type Ledger struct {
	targetError float64
	creditMin   float64
	creditMax   float64
	windowSize  int

	mu      sync.Mutex
	history []float64
	head    int
	filled  int
	balance float64
}

// New constructs a ledger. windowSize must be > 0; creditMin must be <=
// creditMax, otherwise this is a programmer error and New panics (there is
// no sane runtime recovery from an inverted credit band).
func New(targetError, creditMin, creditMax float64, windowSize int) *Ledger {
	if windowSize <= 0 {
		panic("ledger: windowSize must be positive")
	}
	if creditMin > creditMax {
		panic("ledger: creditMin must be <= creditMax")
	}
	return &Ledger{
		targetError: targetError,
		creditMin:   creditMin,
		creditMax:   creditMax,
		windowSize:  windowSize,
		history:     make([]float64, windowSize),
	}
}

// TargetError returns the configured target error.
func (l *Ledger) TargetError() float64 { return l.targetError }

// CreditMin returns the configured lower bound.
func (l *Ledger) CreditMin() float64 { return l.creditMin }

// CreditMax returns the configured upper bound.
func (l *Ledger) CreditMax() float64 { return l.creditMax }

// Balance returns the current balance.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Update appends delta = target_error - max(0, 1-realisedPrecision) to the
// sliding window, clamps the balance into [creditMin, creditMax], and
// returns the new balance.
func (l *Ledger) Update(realisedPrecision float64) float64 {
	realisedError := 1 - realisedPrecision
	if realisedError < 0 {
		realisedError = 0
	}
	delta := l.targetError - realisedError

	l.mu.Lock()
	defer l.mu.Unlock()

	l.history[l.head] = delta
	l.head = (l.head + 1) % l.windowSize
	if l.filled < l.windowSize {
		l.filled++
	}

	l.balance += delta
	if l.balance < l.creditMin {
		l.balance = l.creditMin
	}
	if l.balance > l.creditMax {
		l.balance = l.creditMax
	}
	return l.balance
}

// Velocity returns the arithmetic mean of the sliding window, 0 when empty.
func (l *Ledger) Velocity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.filled == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < l.filled; i++ {
		sum += l.history[i]
	}
	return sum / float64(l.filled)
}

// Reset clears both the balance and the sliding window.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head = 0
	l.filled = 0
	l.balance = 0
	for i := range l.history {
		l.history[i] = 0
	}
}
