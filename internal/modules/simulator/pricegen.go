package simulator

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultBasePrice is used when a symbol has no price history to anchor on.
const DefaultBasePrice = 100.0

// hashToUnit maps (seed, symbol, day) to a deterministic value in [0, 1).
func hashToUnit(seed int64, symbol string, day int) float64 {
	sum := sha256.Sum256([]byte(strconv.FormatInt(seed, 10) + ":" + symbol + ":" + strconv.Itoa(day)))
	x, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:8], 16, 64)
	return float64(x%1_000_000) / 1_000_000.0
}

// PriceFor returns the deterministic training price for a symbol on a given
// simulation day. The same (seed, symbol, day, base) always yields the same
// price: a mild upward drift plus a hash-derived shock scaled by sqrt(day),
// rounded half-up to six decimals and floored at 0.000001.
func PriceFor(symbol string, day int, seed int64, base float64) decimal.Decimal {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	const (
		drift = 0.0003
		vol   = 0.015
	)
	u := hashToUnit(seed, symbol, day)
	shock := (u - 0.5) * 2.0
	factor := math.Exp(drift*float64(day) + vol*shock*math.Sqrt(math.Max(float64(day), 1)))

	p := decimal.NewFromFloat(base * factor).Round(6)
	floor := decimal.New(1, -6) // 0.000001
	if p.LessThanOrEqual(decimal.Zero) {
		return floor
	}
	return p
}
