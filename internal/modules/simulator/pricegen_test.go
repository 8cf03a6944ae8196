package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPriceFor_Deterministic tests that identical inputs always produce the
// same price
func TestPriceFor_Deterministic(t *testing.T) {
	p1 := PriceFor("FCI_MM", 30, 12345, 100.0)
	p2 := PriceFor("FCI_MM", 30, 12345, 100.0)

	assert.True(t, p1.Equal(p2), "same inputs must yield the same price")
}

// TestPriceFor_NormalizesSymbol tests that symbol case and whitespace do not
// change the price
func TestPriceFor_NormalizesSymbol(t *testing.T) {
	upper := PriceFor("AAPL", 10, 7, 100.0)
	messy := PriceFor("  aapl ", 10, 7, 100.0)

	assert.True(t, upper.Equal(messy))
}

func TestPriceFor_VariesByInput(t *testing.T) {
	base := PriceFor("AAPL", 10, 12345, 100.0)

	assert.False(t, base.Equal(PriceFor("AAPL", 11, 12345, 100.0)), "different day")
	assert.False(t, base.Equal(PriceFor("AAPL", 10, 54321, 100.0)), "different seed")
	assert.False(t, base.Equal(PriceFor("MSFT", 10, 12345, 100.0)), "different symbol")
}

func TestPriceFor_PositiveFloor(t *testing.T) {
	// A tiny base cannot produce a zero or negative price.
	p := PriceFor("AAPL", 1, 12345, 0.0000001)

	assert.True(t, p.IsPositive())
	f, _ := p.Float64()
	assert.GreaterOrEqual(t, f, 0.000001)
}

func TestPriceFor_SixDecimalPlaces(t *testing.T) {
	p := PriceFor("FCI_MM", 200, 999, 1234.56)

	assert.LessOrEqual(t, int(-p.Exponent()), 6, "price is quantized to six decimals")
}

func TestPriceFor_DayZeroUsesBase(t *testing.T) {
	// At day 0 the drift term vanishes but the shock term still applies with
	// sqrt(max(0,1)) = 1, so the price stays near the base without equaling it
	// exactly.
	p, _ := PriceFor("AAPL", 0, 12345, 100.0).Float64()

	assert.InDelta(t, 100.0, p, 2.0)
}
