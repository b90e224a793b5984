package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerArithmeticScenarioS1(t *testing.T) {
	l := New(0.05, -1, 1, 4)

	assert.InDelta(t, 0.05, l.Update(1.00), 1e-9)
	assert.InDelta(t, -0.40, l.Update(0.50), 1e-9)
	assert.InDelta(t, -0.85, l.Update(0.50), 1e-9)
	assert.InDelta(t, -1.0, l.Update(0.50), 1e-9)

	assert.InDelta(t, -0.325, l.Velocity(), 1e-9)
}

func TestLedgerVelocityEmpty(t *testing.T) {
	l := New(0.05, -1, 1, 4)
	assert.Equal(t, 0.0, l.Velocity())
}

func TestLedgerClampsBalance(t *testing.T) {
	l := New(0.05, -0.5, 0.5, 4)
	for i := 0; i < 20; i++ {
		b := l.Update(0)
		assert.GreaterOrEqual(t, b, -0.5)
		assert.LessOrEqual(t, b, 0.5)
	}
}

func TestLedgerReset(t *testing.T) {
	l := New(0.05, -1, 1, 4)
	l.Update(0)
	l.Update(0)
	l.Reset()
	assert.Equal(t, 0.0, l.Balance())
	assert.Equal(t, 0.0, l.Velocity())
}

func TestLedgerMonotonicityOfDelta(t *testing.T) {
	l1 := New(0.05, -1, 1, 4)
	l2 := New(0.05, -1, 1, 4)
	b1 := l1.Update(0.9)
	b2 := l2.Update(0.4)
	assert.Greater(t, b1, b2)
}

func TestLedgerPanicsOnInvertedBand(t *testing.T) {
	assert.Panics(t, func() { New(0.05, 1, -1, 4) })
}
