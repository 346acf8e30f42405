package domain

import (
	"math"
	"testing"
	"time"
)

func TestPositionShareAccounting(t *testing.T) {
	pos := Position{
		Ticker:        "AAPL",
		Direction:     DirectionLong,
		EntryPrice:    100.0,
		StopPrice:     95.0,
		InitialShares: 400,
		CurrentShares: 400,
		RiskPerShare:  5.0,
	}

	if got := pos.TotalEnteredShares(); got != 400 {
		t.Errorf("TotalEnteredShares = %d, want 400", got)
	}
	if got := pos.AvgEntryPrice(); got != 100.0 {
		t.Errorf("AvgEntryPrice = %v, want 100.0", got)
	}

	// One pyramid add of 200 shares at 110.
	pos.PyramidAdds = append(pos.PyramidAdds, PyramidAdd{
		Date:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Price:  110.0,
		Shares: 200,
		RAtAdd: 2.0,
	})
	pos.CurrentShares += 200

	if got := pos.TotalEnteredShares(); got != 600 {
		t.Errorf("TotalEnteredShares after add = %d, want 600", got)
	}

	// Weighted average: (400*100 + 200*110) / 600.
	wantAvg := (400*100.0 + 200*110.0) / 600.0
	if got := pos.AvgEntryPrice(); math.Abs(got-wantAvg) > 1e-9 {
		t.Errorf("AvgEntryPrice after add = %v, want %v", got, wantAvg)
	}

	// CurrentShares = initial + pyramids - partials, never negative.
	partial := 180
	pos.CurrentShares -= partial
	if pos.CurrentShares != 400+200-partial {
		t.Errorf("CurrentShares = %d, want %d", pos.CurrentShares, 400+200-partial)
	}
	if pos.CurrentShares < 0 {
		t.Error("CurrentShares must never go negative")
	}
}

func TestUnrealizedR(t *testing.T) {
	long := Position{Direction: DirectionLong, EntryPrice: 100, RiskPerShare: 5}
	if got := long.UnrealizedR(110); got != 2.0 {
		t.Errorf("long UnrealizedR(110) = %v, want 2.0", got)
	}
	if got := long.UnrealizedR(95); got != -1.0 {
		t.Errorf("long UnrealizedR(95) = %v, want -1.0", got)
	}

	short := Position{Direction: DirectionShort, EntryPrice: 100, RiskPerShare: 5}
	if got := short.UnrealizedR(90); got != 2.0 {
		t.Errorf("short UnrealizedR(90) = %v, want 2.0", got)
	}

	// Zero risk clamps to a penny instead of dividing by zero.
	degenerate := Position{Direction: DirectionLong, EntryPrice: 100, RiskPerShare: 0}
	if got := degenerate.UnrealizedR(100.01); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("degenerate UnrealizedR = %v, want 1.0", got)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.006, 1.01},
		{-2.344, -2.34},
		{0, 0},
		{123.456, 123.46},
	}
	for _, c := range cases {
		if got := Round2(c.in); got != c.want {
			t.Errorf("Round2(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
