package simulator

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecnolok-2025/invpanel-pro/internal/database"
)

type fixedCloses map[string]float64

func (f fixedCloses) LatestClose(symbol string) (float64, bool, error) {
	v, ok := f[symbol]
	return v, ok, nil
}

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(database.Schema)
	require.NoError(t, err)

	repo := NewRepository(db, log)
	return NewService(db, repo, fixedCloses{}, log), db
}

func TestCreate_Defaults(t *testing.T) {
	svc, _ := newTestService(t)

	sim, err := svc.Create("local", "Training", "")
	require.NoError(t, err)

	assert.Equal(t, PresetBalanced, sim.Preset)
	assert.Equal(t, DefaultVirtualCash, sim.VirtualCash)
	assert.Equal(t, int64(DefaultSeed), sim.Seed)
	assert.Equal(t, 0, sim.CurrentDay)
}

func TestCreate_RequiresName(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create("local", "   ", PresetBalanced)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestTrade_BuySellRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	sim, err := svc.Create("local", "Training", PresetBalanced)
	require.NoError(t, err)

	buy, err := svc.Trade(sim.ID, "local", TradeOrder{
		Symbol: "aapl", Side: SideBuy, Quantity: 10, Price: 150,
	})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", buy.Symbol)

	detail, err := svc.Detail(sim.ID, "local")
	require.NoError(t, err)
	assert.Equal(t, DefaultVirtualCash-1500, detail.Simulation.VirtualCash)
	require.Len(t, detail.Positions, 1)
	assert.Equal(t, 10.0, detail.Positions[0].Quantity)
	assert.Equal(t, 150.0, detail.Positions[0].AvgPrice)

	_, err = svc.Trade(sim.ID, "local", TradeOrder{
		Symbol: "AAPL", Side: SideSell, Quantity: 10, Price: 150,
	})
	require.NoError(t, err)

	detail, err = svc.Detail(sim.ID, "local")
	require.NoError(t, err)
	assert.Equal(t, DefaultVirtualCash, detail.Simulation.VirtualCash, "cash restored after selling at cost")
	assert.Equal(t, 0.0, detail.Positions[0].Quantity)
	assert.Equal(t, 0.0, detail.Positions[0].AvgPrice, "average resets when the position closes")
	assert.Len(t, detail.Trades, 2)
}

func TestTrade_WeightedAverageCost(t *testing.T) {
	svc, _ := newTestService(t)

	sim, err := svc.Create("local", "Training", PresetBalanced)
	require.NoError(t, err)

	_, err = svc.Trade(sim.ID, "local", TradeOrder{Symbol: "AAPL", Side: SideBuy, Quantity: 10, Price: 100})
	require.NoError(t, err)
	_, err = svc.Trade(sim.ID, "local", TradeOrder{Symbol: "AAPL", Side: SideBuy, Quantity: 10, Price: 200})
	require.NoError(t, err)

	detail, err := svc.Detail(sim.ID, "local")
	require.NoError(t, err)
	require.Len(t, detail.Positions, 1)
	assert.InDelta(t, 150.0, detail.Positions[0].AvgPrice, 1e-9)
	assert.Equal(t, 20.0, detail.Positions[0].Quantity)
}

func TestTrade_InsufficientCash_NoMutation(t *testing.T) {
	svc, _ := newTestService(t)

	sim, err := svc.Create("local", "Training", PresetBalanced)
	require.NoError(t, err)

	_, err = svc.Trade(sim.ID, "local", TradeOrder{
		Symbol: "AAPL", Side: SideBuy, Quantity: 1, Price: DefaultVirtualCash * 2,
	})
	assert.ErrorIs(t, err, ErrInsufficientCash)

	detail, err := svc.Detail(sim.ID, "local")
	require.NoError(t, err)
	assert.Equal(t, DefaultVirtualCash, detail.Simulation.VirtualCash, "failed buy must not touch cash")
	assert.Empty(t, detail.Trades, "failed buy must not reach the trade tape")
}

func TestTrade_InsufficientPosition_NoMutation(t *testing.T) {
	svc, _ := newTestService(t)

	sim, err := svc.Create("local", "Training", PresetBalanced)
	require.NoError(t, err)

	_, err = svc.Trade(sim.ID, "local", TradeOrder{Symbol: "AAPL", Side: SideSell, Quantity: 5, Price: 100})
	assert.ErrorIs(t, err, ErrInsufficientPosition)

	detail, err := svc.Detail(sim.ID, "local")
	require.NoError(t, err)
	assert.Equal(t, DefaultVirtualCash, detail.Simulation.VirtualCash)
	assert.Empty(t, detail.Trades)
}

func TestTrade_ZeroPriceUsesDeterministicPrice(t *testing.T) {
	svc, _ := newTestService(t)

	sim, err := svc.Create("local", "Training", PresetBalanced)
	require.NoError(t, err)

	trade, err := svc.Trade(sim.ID, "local", TradeOrder{Symbol: "AAPL", Side: SideBuy, Quantity: 1})
	require.NoError(t, err)

	want, _ := PriceFor("AAPL", sim.CurrentDay, sim.Seed, DefaultBasePrice).Float64()
	assert.Equal(t, want, trade.Price)
}

func TestTrade_OwnerIsolation(t *testing.T) {
	svc, _ := newTestService(t)

	sim, err := svc.Create("alice", "Training", PresetBalanced)
	require.NoError(t, err)

	_, err = svc.Trade(sim.ID, "bob", TradeOrder{Symbol: "AAPL", Side: SideBuy, Quantity: 1, Price: 100})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdvance_ClampsDays(t *testing.T) {
	svc, _ := newTestService(t)

	sim, err := svc.Create("local", "Training", PresetBalanced)
	require.NoError(t, err)

	advanced, err := svc.Advance(sim.ID, "local", 10_000)
	require.NoError(t, err)
	assert.Equal(t, MaxAdvanceDays, advanced.CurrentDay)

	advanced, err = svc.Advance(sim.ID, "local", 0)
	require.NoError(t, err)
	assert.Equal(t, MaxAdvanceDays+MinAdvanceDays, advanced.CurrentDay, "non-positive requests advance one day")
}

func TestAdvance_ChangesPrices(t *testing.T) {
	svc, _ := newTestService(t)

	sim, err := svc.Create("local", "Training", PresetBalanced)
	require.NoError(t, err)

	before := svc.CurrentPrice(sim, "AAPL")

	advanced, err := svc.Advance(sim.ID, "local", 30)
	require.NoError(t, err)

	assert.NotEqual(t, before, svc.CurrentPrice(advanced, "AAPL"))
}
