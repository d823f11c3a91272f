package domain

import (
	"testing"
	"time"
)

func TestRegimeFromScoreClassification(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		score int
		want  AllowedDirection
	}{
		{0, LongOnly},
		{20, LongOnly},
		{29, LongOnly},
		{30, Both},
		{50, Both},
		{80, Both},
		{81, ShortOnly},
		{90, ShortOnly},
		{100, ShortOnly},
	}
	for _, tc := range cases {
		got := RegimeFromScore(tc.score, now, time.Hour)
		if got.AllowedDirection != tc.want {
			t.Fatalf("score %d: expected %s, got %s", tc.score, tc.want, got.AllowedDirection)
		}
	}
}

func TestRegimeAllows(t *testing.T) {
	now := time.Now()
	longOnly := RegimeFromScore(20, now, time.Hour)
	if !longOnly.Allows(DirectionLong) || longOnly.Allows(DirectionShort) {
		t.Fatal("LONG_ONLY regime should permit longs only")
	}
	shortOnly := RegimeFromScore(90, now, time.Hour)
	if shortOnly.Allows(DirectionLong) || !shortOnly.Allows(DirectionShort) {
		t.Fatal("SHORT_ONLY regime should permit shorts only")
	}
	both := RegimeFromScore(50, now, time.Hour)
	if !both.Allows(DirectionLong) || !both.Allows(DirectionShort) {
		t.Fatal("BOTH regime should permit either direction")
	}
}

func TestRegimeStale(t *testing.T) {
	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := RegimeFromScore(50, fetched, 30*time.Minute)
	if r.Stale(fetched.Add(29 * time.Minute)) {
		t.Fatal("regime should not be stale within TTL")
	}
	if !r.Stale(fetched.Add(31 * time.Minute)) {
		t.Fatal("regime should be stale past TTL")
	}
}

func TestRiskProfileValidateBounds(t *testing.T) {
	valid := RiskProfile{
		SubscriberID:           1,
		BalancePercentPerTrade: 30,
		Leverage:               5,
		TakeProfitMultiplier:   3,
		StopLossMultiplier:     2,
		MaxConcurrentPositions: 3,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid profile rejected: %v", err)
	}

	cases := []RiskProfile{
		func() RiskProfile { p := valid; p.BalancePercentPerTrade = 5; return p }(),
		func() RiskProfile { p := valid; p.BalancePercentPerTrade = 60; return p }(),
		func() RiskProfile { p := valid; p.Leverage = 0; return p }(),
		func() RiskProfile { p := valid; p.Leverage = 11; return p }(),
		func() RiskProfile { p := valid; p.StopLossMultiplier = 0; return p }(),
		func() RiskProfile { p := valid; p.MaxConcurrentPositions = 0; return p }(),
		func() RiskProfile { p := valid; p.MaxConcurrentPositions = 6; return p }(),
	}
	for i, p := range cases {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d: out-of-bounds profile accepted", i)
		}
	}
}

func TestSignalDispatchable(t *testing.T) {
	strong := Signal{Strength: StrengthStrong}
	if !strong.Dispatchable() {
		t.Fatal("strong signal should dispatch")
	}
	weak := Signal{Strength: StrengthWeak}
	if weak.Dispatchable() {
		t.Fatal("weak informational signal should not dispatch")
	}
	closeSig := Signal{Strength: StrengthWeak, CloseIntent: true}
	if !closeSig.Dispatchable() {
		t.Fatal("close-intent signal should always dispatch")
	}
}

func TestDirectionOpposite(t *testing.T) {
	if DirectionLong.Opposite() != DirectionShort || DirectionShort.Opposite() != DirectionLong {
		t.Fatal("unexpected opposite direction")
	}
}
