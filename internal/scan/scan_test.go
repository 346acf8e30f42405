package scan

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"marlin/internal/domain"
	"marlin/internal/market"
	"marlin/internal/store"
	"marlin/internal/strategy"
)

func asOfDate() time.Time {
	return time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
}

func TestValidatorDedupsByPriority(t *testing.T) {
	v := NewPriorityValidator(strategy.DefaultTable(), 2.0)

	signals := []domain.Signal{
		{Ticker: "AAPL", Strategy: strategy.High52, Direction: domain.DirectionLong, Entry: 100, Stop: 94, Score: 0.9},
		{Ticker: "AAPL", Strategy: strategy.RelStrengthRank, Direction: domain.DirectionLong, Entry: 100, Stop: 95, Score: 0.1},
		{Ticker: "MSFT", Strategy: strategy.High52, Direction: domain.DirectionLong, Entry: 400, Stop: 380, Score: 0.5},
	}

	specs, err := v.ValidateAndRank(context.Background(), signals, asOfDate())
	if err != nil {
		t.Fatalf("ValidateAndRank: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}

	var aapl *domain.TradeSpec
	for i := range specs {
		if specs[i].Ticker == "AAPL" {
			aapl = &specs[i]
		}
	}
	if aapl == nil {
		t.Fatal("AAPL spec missing")
	}
	// RelStrengthRank outranks High52 in the dedup, so its levels win even
	// though its score is lower.
	if aapl.Strategy != strategy.RelStrengthRank || aapl.Stop != 95 {
		t.Errorf("AAPL spec = %+v, want RelStrengthRank with stop 95", aapl)
	}
	// Target = entry + rr * risk = 100 + 2*5.
	if aapl.Target != 110 {
		t.Errorf("AAPL target = %v, want 110", aapl.Target)
	}
	if aapl.MaxHoldingDays != 150 {
		t.Errorf("AAPL MaxHoldingDays = %d, want 150", aapl.MaxHoldingDays)
	}
}

func TestValidatorRanksByPriorityThenScore(t *testing.T) {
	v := NewPriorityValidator(strategy.DefaultTable(), 2.0)

	signals := []domain.Signal{
		{Ticker: "LOW", Strategy: strategy.High52, Direction: domain.DirectionLong, Entry: 50, Stop: 48, Score: 0.1},
		{Ticker: "HIGH", Strategy: strategy.High52, Direction: domain.DirectionLong, Entry: 60, Stop: 57, Score: 0.8},
		{Ticker: "TIE2", Strategy: strategy.High52, Direction: domain.DirectionLong, Entry: 70, Stop: 66, Score: 0.1},
		{Ticker: "BASE", Strategy: strategy.BigBaseBreakout, Direction: domain.DirectionLong, Entry: 80, Stop: 76, Score: 0.05},
	}

	specs, err := v.ValidateAndRank(context.Background(), signals, asOfDate())
	if err != nil {
		t.Fatalf("ValidateAndRank: %v", err)
	}
	if len(specs) != 4 {
		t.Fatalf("got %d specs, want 4", len(specs))
	}
	// The rarer BigBase setup is admitted first regardless of score.
	if specs[0].Ticker != "BASE" {
		t.Errorf("first spec = %s, want BASE", specs[0].Ticker)
	}
	if specs[1].Ticker != "HIGH" {
		t.Errorf("second spec = %s, want HIGH (best score within High52)", specs[1].Ticker)
	}
	// Tied priority and score break by ticker for reproducible output.
	if specs[2].Ticker != "LOW" || specs[3].Ticker != "TIE2" {
		t.Errorf("tie order = [%s %s], want [LOW TIE2]", specs[2].Ticker, specs[3].Ticker)
	}
}

func TestValidatorDropsZeroRiskAndUnknownStrategy(t *testing.T) {
	v := NewPriorityValidator(strategy.DefaultTable(), 2.0)

	signals := []domain.Signal{
		{Ticker: "FLAT", Strategy: strategy.High52, Direction: domain.DirectionLong, Entry: 100, Stop: 100},
		{Ticker: "INV", Strategy: strategy.High52, Direction: domain.DirectionLong, Entry: 100, Stop: 105},
		{Ticker: "UNK", Strategy: "Mystery_Position", Direction: domain.DirectionLong, Entry: 100, Stop: 95},
	}

	specs, err := v.ValidateAndRank(context.Background(), signals, asOfDate())
	if err != nil {
		t.Fatalf("ValidateAndRank: %v", err)
	}
	if len(specs) != 0 {
		t.Errorf("got %d specs, want 0: %+v", len(specs), specs)
	}
}

func TestHigh52ScannerSignalsNewHigh(t *testing.T) {
	ctx := context.Background()
	ps := store.NewParquetStore(t.TempDir())

	// 70 rising closes ending at a fresh high well above the 50-day average.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var bars []domain.Bar
	d := start
	for i := 0; i < 70; i++ {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		price := 100 + float64(i)
		bars = append(bars, domain.Bar{
			Symbol: "UPUP", Timestamp: d,
			Open: price - 0.5, High: price + 1, Low: price - 1, Close: price,
			Volume: 1_000_000,
		})
		d = d.AddDate(0, 0, 1)
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	asOf := bars[len(bars)-1].Timestamp

	provider := market.NewProvider(ps, domain.MarketUS, start, asOf, slog.Default())
	sc := NewHigh52Scanner(provider, slog.Default())

	signals, err := sc.Scan(ctx, asOf, []string{"UPUP", "MISSING"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Ticker != "UPUP" || sig.Strategy != "High52_Position" {
		t.Errorf("signal = %+v", sig)
	}
	if sig.Stop >= sig.Entry {
		t.Errorf("stop %v should be below entry %v", sig.Stop, sig.Entry)
	}
	if sig.Score <= 0 {
		t.Errorf("score = %v, want positive momentum", sig.Score)
	}

	// The same scan a day earlier must not see the final bar.
	prevAsOf := bars[len(bars)-2].Timestamp
	signals, err = sc.Scan(ctx, prevAsOf, []string{"UPUP"})
	if err != nil {
		t.Fatalf("Scan (earlier): %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals on earlier date, want 1", len(signals))
	}
	if signals[0].Entry != bars[len(bars)-2].Close {
		t.Errorf("earlier entry = %v, want %v (no look-ahead)", signals[0].Entry, bars[len(bars)-2].Close)
	}
}
