package backtest

import (
	"testing"
	"time"

	"marlin/internal/domain"
	"marlin/internal/market"
	"marlin/internal/strategy"
)

func seriesOf(closes ...float64) market.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Open:      c, High: c + 0.5, Low: c - 0.5, Close: c,
			Volume: 1000,
		}
	}
	return market.NewSeries(bars)
}

func flatCloses(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func lastBar(t *testing.T, s market.Series) domain.Bar {
	t.Helper()
	bar, ok := s.Last()
	if !ok {
		t.Fatal("empty series")
	}
	return bar
}

func openTestPosition(strategyID string) *domain.Position {
	spec := domain.TradeSpec{
		Ticker:         "TEST",
		Strategy:       strategyID,
		Direction:      domain.DirectionLong,
		Entry:          100,
		Stop:           95,
		Target:         110,
		MaxHoldingDays: 90,
	}
	return NewPosition(spec, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 400)
}

func testTable(t *testing.T, rows ...strategy.Params) *strategy.Table {
	t.Helper()
	table, err := strategy.NewTable(rows)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func noPyramidGlobals() strategy.Globals {
	g := strategy.DefaultGlobals()
	g.Pyramid.Enabled = false
	return g
}

func TestHardStopExitAtOriginalStop(t *testing.T) {
	e := NewRuleEngine(strategy.DefaultTable(), strategy.DefaultGlobals())
	pos := openTestPosition(strategy.TrendCont)
	pos.DaysHeld = 5

	bar := domain.Bar{
		Timestamp: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		Open:      97, High: 98, Low: 94.5, Close: 96,
	}
	d := e.Evaluate(pos, bar, seriesOf(100, 99, 96))
	if !d.Exited || d.ExitReason != "StopLoss" {
		t.Fatalf("decision = %+v, want StopLoss exit", d)
	}
	if d.ExitPrice != 95 {
		t.Errorf("exit price = %v, want the stop price 95", d.ExitPrice)
	}

	row := closedRow(pos, bar.Timestamp, d.ExitPrice, pos.CurrentShares, fullExitType(pos), d.ExitReason, pos.DaysHeld)
	if row.RMultiple != -1.0 {
		t.Errorf("R at the original stop = %v, want -1.0", row.RMultiple)
	}
	if row.PnL != -2000 || row.Outcome != domain.OutcomeLoss {
		t.Errorf("row = PnL %v outcome %s, want -2000 Loss", row.PnL, row.Outcome)
	}
	if row.PositionType != domain.PositionFull {
		t.Errorf("position type = %s, want Full", row.PositionType)
	}
}

func TestBreakevenStopAfterPartialIsZeroR(t *testing.T) {
	e := NewRuleEngine(strategy.DefaultTable(), strategy.DefaultGlobals())
	pos := openTestPosition(strategy.TrendCont)
	pos.PartialExited = true
	pos.StopPrice = pos.EntryPrice
	pos.CurrentShares = 280

	bar := domain.Bar{
		Timestamp: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Open:      101, High: 102, Low: 99, Close: 100.5,
	}
	d := e.Evaluate(pos, bar, seriesOf(100, 105, 100.5))
	if !d.Exited || d.ExitPrice != 100 {
		t.Fatalf("decision = %+v, want exit at breakeven 100", d)
	}

	row := closedRow(pos, bar.Timestamp, d.ExitPrice, pos.CurrentShares, fullExitType(pos), d.ExitReason, pos.DaysHeld)
	// R is measured against the original risk, so breakeven reads 0, not -1.
	if row.RMultiple != 0 {
		t.Errorf("R at ratcheted breakeven = %v, want 0", row.RMultiple)
	}
	if row.PositionType != domain.PositionRunner {
		t.Errorf("position type = %s, want Runner", row.PositionType)
	}
}

func TestPartialProfitLeavesRunner(t *testing.T) {
	e := NewRuleEngine(strategy.DefaultTable(), noPyramidGlobals())
	pos := openTestPosition(strategy.TrendCont) // PartialR 2.0, size 0.3
	pos.DaysHeld = 10

	history := seriesOf(flatCloses(30, 110)...)
	d := e.Evaluate(pos, lastBar(t, history), history)

	if d.Exited {
		t.Fatalf("partial must not close the position: %+v", d)
	}
	if d.Partial == nil {
		t.Fatal("expected a partial ledger row")
	}
	row := *d.Partial
	if row.PositionType != domain.PositionPartial || row.ExitReason != "Partial_2.0R" {
		t.Errorf("row = type %s reason %s, want Partial Partial_2.0R", row.PositionType, row.ExitReason)
	}
	if row.Shares != 120 || row.PnL != 1200 || row.Outcome != domain.OutcomeWin {
		t.Errorf("row = %d shares PnL %v %s, want 120 shares PnL 1200 Win", row.Shares, row.PnL, row.Outcome)
	}
	if row.RMultiple != 2.0 {
		t.Errorf("partial R = %v, want 2.0", row.RMultiple)
	}

	if pos.CurrentShares != 280 || !pos.PartialExited {
		t.Errorf("runner = %d shares partialExited=%v, want 280 true", pos.CurrentShares, pos.PartialExited)
	}
	if pos.StopPrice != pos.EntryPrice {
		t.Errorf("stop = %v, want ratcheted to breakeven %v", pos.StopPrice, pos.EntryPrice)
	}

	// The partial fires once per position.
	d = e.Evaluate(pos, lastBar(t, history), history)
	if d.Partial != nil {
		t.Error("second partial emitted for the same position")
	}
}

func TestPyramidAddOnPullback(t *testing.T) {
	table := testTable(t, strategy.Params{
		ID: "Momentum_X", Priority: 1, MaxPositions: 5, MaxHoldingDays: 90,
		PartialR: 99, PartialSize: 0.3,
		Trail: strategy.TrailPolicy{Kind: strategy.TrailSingle, MA: 50, Closes: 5},
	})
	e := NewRuleEngine(table, strategy.DefaultGlobals())
	pos := openTestPosition("Momentum_X")

	// Flat at 110: R = 2.0 and the close sits on EMA21 within one ATR.
	history := seriesOf(flatCloses(30, 110)...)
	bar := lastBar(t, history)

	d := e.Evaluate(pos, bar, history)
	if d.Exited || !d.Pyramided {
		t.Fatalf("decision = %+v, want a pyramid add and no exit", d)
	}
	if len(pos.PyramidAdds) != 1 {
		t.Fatalf("got %d adds, want 1", len(pos.PyramidAdds))
	}
	add := pos.PyramidAdds[0]
	if add.Shares != 200 || add.Price != 110 || add.RAtAdd != 2.0 {
		t.Errorf("add = %+v, want 200 shares at 110, R 2.0", add)
	}
	if pos.CurrentShares != 600 {
		t.Errorf("CurrentShares = %d, want 600", pos.CurrentShares)
	}
	if got := domain.Round2(pos.AvgEntryPrice()); got != 103.33 {
		t.Errorf("avg entry after add = %v, want 103.33", got)
	}

	// Adds cap out at MaxAdds.
	e.Evaluate(pos, bar, history)
	e.Evaluate(pos, bar, history)
	d = e.Evaluate(pos, bar, history)
	if d.Pyramided || len(pos.PyramidAdds) != 3 {
		t.Errorf("adds = %d (pyramided=%v), want capped at 3", len(pos.PyramidAdds), d.Pyramided)
	}
}

func TestPyramidBlockedAfterPartial(t *testing.T) {
	table := testTable(t, strategy.Params{
		ID: "Momentum_X", Priority: 1, MaxPositions: 5, MaxHoldingDays: 90,
		PartialR: 99, PartialSize: 0.3,
		Trail: strategy.TrailPolicy{Kind: strategy.TrailSingle, MA: 50, Closes: 5},
	})
	e := NewRuleEngine(table, strategy.DefaultGlobals())
	pos := openTestPosition("Momentum_X")
	pos.PartialExited = true

	history := seriesOf(flatCloses(30, 110)...)
	d := e.Evaluate(pos, lastBar(t, history), history)
	if d.Pyramided {
		t.Error("pyramid add after a partial exit")
	}
}

func TestPyramidThenPartialSameDay(t *testing.T) {
	e := NewRuleEngine(strategy.DefaultTable(), strategy.DefaultGlobals())
	pos := openTestPosition(strategy.TrendCont) // PartialR 2.0

	history := seriesOf(flatCloses(30, 110)...)
	d := e.Evaluate(pos, lastBar(t, history), history)

	if !d.Pyramided || d.Partial == nil || d.Exited {
		t.Fatalf("decision = %+v, want pyramid and partial, no exit", d)
	}
	// The partial sizes off shares including the same-day add: 30% of 600.
	if d.Partial.Shares != 180 {
		t.Errorf("partial shares = %d, want 180", d.Partial.Shares)
	}
	if d.Partial.PnL != 1200 {
		t.Errorf("partial PnL vs weighted-average cost = %v, want 1200", d.Partial.PnL)
	}
	// The add count is carried by the terminal row alone.
	if d.Partial.PyramidAdds != 0 {
		t.Errorf("partial row pyramid count = %d, want 0", d.Partial.PyramidAdds)
	}
	if pos.CurrentShares != 420 {
		t.Errorf("CurrentShares = %d, want 420", pos.CurrentShares)
	}
}

func TestTimeStop(t *testing.T) {
	e := NewRuleEngine(strategy.DefaultTable(), strategy.DefaultGlobals())
	history := seriesOf(flatCloses(30, 100)...)
	bar := lastBar(t, history)

	pos := openTestPosition(strategy.TrendCont)
	pos.DaysHeld = 90
	d := e.Evaluate(pos, bar, history)
	if !d.Exited || d.ExitReason != "TimeStop_90d" {
		t.Fatalf("decision = %+v, want TimeStop_90d", d)
	}
	if d.ExitPrice != 100 {
		t.Errorf("time stop exits at the close, got %v", d.ExitPrice)
	}

	// A pyramided position is exempt; the trail manages it instead.
	pyramided := openTestPosition(strategy.TrendCont)
	pyramided.DaysHeld = 90
	pyramided.PyramidAdds = []domain.PyramidAdd{{Date: bar.Timestamp, Price: 105, Shares: 200, RAtAdd: 1.5}}
	d = e.Evaluate(pyramided, bar, history)
	if d.Exited {
		t.Errorf("pyramided position hit the time stop: %+v", d)
	}
}

func TestTrailCounterAndReset(t *testing.T) {
	table := testTable(t, strategy.Params{
		ID: "Trend_X", Priority: 1, MaxPositions: 5, MaxHoldingDays: 500,
		PartialR: 99, PartialSize: 0.3,
		Trail: strategy.TrailPolicy{Kind: strategy.TrailSingle, MA: 50, Closes: 2},
	})
	e := NewRuleEngine(table, noPyramidGlobals())

	spec := domain.TradeSpec{
		Ticker: "TEST", Strategy: "Trend_X", Direction: domain.DirectionLong,
		Entry: 100, Stop: 90, MaxHoldingDays: 500,
	}
	pos := NewPosition(spec, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 200)

	base := flatCloses(50, 100)
	step := func(closes ...float64) Decision {
		history := seriesOf(append(append([]float64{}, base...), closes...)...)
		return e.Evaluate(pos, lastBar(t, history), history)
	}

	if d := step(99); d.Exited || pos.TrailCloses != 1 {
		t.Fatalf("after first close below: exited=%v counter=%d, want open counter 1", d.Exited, pos.TrailCloses)
	}
	// A close back above the average resets the counter.
	if d := step(99, 101); d.Exited || pos.TrailCloses != 0 {
		t.Fatalf("after close above: exited=%v counter=%d, want open counter 0", d.Exited, pos.TrailCloses)
	}
	if d := step(99, 101, 99); d.Exited || pos.TrailCloses != 1 {
		t.Fatalf("counter = %d, want 1", pos.TrailCloses)
	}
	d := step(99, 101, 99, 98)
	if !d.Exited || d.ExitReason != "MA50_Trail" || d.ExitPrice != 98 {
		t.Fatalf("decision = %+v, want MA50_Trail exit at 98", d)
	}
}

func TestTrailHybridPhases(t *testing.T) {
	table := testTable(t, strategy.Params{
		ID: "Breakout_X", Priority: 1, MaxPositions: 5, MaxHoldingDays: 500,
		PartialR: 99, PartialSize: 0.3,
		Trail: strategy.TrailPolicy{
			Kind:     strategy.TrailHybrid,
			EarlyEMA: 21, EarlyCloses: 1,
			SwitchAfterDays: 60,
			LateMA:          50, LateCloses: 1,
		},
	})
	e := NewRuleEngine(table, noPyramidGlobals())
	history := seriesOf(append(flatCloses(50, 100), 99)...)
	bar := lastBar(t, history)

	spec := domain.TradeSpec{
		Ticker: "TEST", Strategy: "Breakout_X", Direction: domain.DirectionLong,
		Entry: 100, Stop: 90, MaxHoldingDays: 500,
	}

	early := NewPosition(spec, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 200)
	early.DaysHeld = 10
	d := e.Evaluate(early, bar, history)
	if !d.Exited || d.ExitReason != "EMA21_Trail_Early" {
		t.Errorf("early phase decision = %+v, want EMA21_Trail_Early", d)
	}

	late := NewPosition(spec, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 200)
	late.DaysHeld = 61
	d = e.Evaluate(late, bar, history)
	if !d.Exited || d.ExitReason != "MA50_Trail_Late" {
		t.Errorf("late phase decision = %+v, want MA50_Trail_Late", d)
	}
}

func TestTrailHoldsOnShortHistory(t *testing.T) {
	e := NewRuleEngine(strategy.DefaultTable(), noPyramidGlobals())

	spec := domain.TradeSpec{
		Ticker: "TEST", Strategy: strategy.TrendCont, Direction: domain.DirectionLong,
		Entry: 100, Stop: 80, MaxHoldingDays: 500,
	}
	pos := NewPosition(spec, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 100)

	// 31 bars is under the 50-bar minimum; even a weak close holds.
	history := seriesOf(append(flatCloses(30, 100), 90)...)
	d := e.Evaluate(pos, lastBar(t, history), history)
	if d.Exited {
		t.Errorf("trail fired with %d bars of history: %+v", history.Len(), d)
	}
	if pos.TrailCloses != 0 {
		t.Errorf("counter advanced on short history: %d", pos.TrailCloses)
	}
}
