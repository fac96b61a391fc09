package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/marine-alerts/internal/ledger"
)

func at(hour, minute, second int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, second, 0, time.UTC)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name          string
		now           time.Time
		digestDone    bool
		lastScanHour  time.Time
		lastThreshold time.Time
		wantCycle     cycle
		wantWait      time.Duration
	}{
		{
			name:          "digest at the digest hour",
			now:           at(6, 2, 0),
			lastThreshold: at(6, 0, 0),
			wantCycle:     cycleDigest,
		},
		{
			name:          "digest window closed",
			now:           at(6, 5, 0),
			lastScanHour:  at(6, 0, 0),
			lastThreshold: at(6, 0, 0),
			wantCycle:     cycleNone,
			wantWait:      5 * time.Minute,
		},
		{
			name:          "scan after digest in the same hour",
			now:           at(6, 0, 30),
			digestDone:    true,
			lastThreshold: at(5, 55, 0),
			wantCycle:     cycleScan,
			wantWait:      2 * time.Minute,
		},
		{
			name:          "scan at the top of the hour",
			now:           at(9, 0, 0),
			lastScanHour:  at(8, 0, 0),
			lastThreshold: at(8, 58, 0),
			wantCycle:     cycleScan,
			wantWait:      2 * time.Minute,
		},
		{
			name:          "threshold cycle overran the top of the hour",
			now:           at(9, 1, 10),
			lastScanHour:  at(8, 0, 0),
			lastThreshold: at(8, 59, 50),
			wantCycle:     cycleScan,
			wantWait:      2 * time.Minute,
		},
		{
			name:          "scan delayed by a backoff",
			now:           at(9, 14, 0),
			lastScanHour:  at(8, 0, 0),
			lastThreshold: at(9, 10, 0),
			wantCycle:     cycleScan,
			wantWait:      2 * time.Minute,
		},
		{
			name:          "one scan per hour",
			now:           at(9, 0, 10),
			lastScanHour:  at(9, 0, 0),
			lastThreshold: at(8, 58, 0),
			wantCycle:     cycleNone,
			wantWait:      5 * time.Minute,
		},
		{
			name:          "threshold never ran",
			now:           at(9, 30, 0),
			lastScanHour:  at(9, 0, 0),
			wantCycle:     cycleThreshold,
		},
		{
			name:          "threshold interval elapsed",
			now:           at(9, 30, 0),
			lastScanHour:  at(9, 0, 0),
			lastThreshold: at(9, 20, 0),
			wantCycle:     cycleThreshold,
		},
		{
			name:          "wait until the threshold is due",
			now:           at(9, 0, 10),
			lastScanHour:  at(9, 0, 0),
			lastThreshold: at(8, 55, 0),
			wantCycle:     cycleNone,
			wantWait:      4*time.Minute + 50*time.Second,
		},
		{
			name:          "wait until the top of the hour",
			now:           at(9, 57, 0),
			lastScanHour:  at(9, 0, 0),
			lastThreshold: at(9, 55, 0),
			wantCycle:     cycleNone,
			wantWait:      3 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(Deps{Ledger: ledger.New()}, DefaultSettings())
			if tt.digestDone {
				o.lastDigestDay = tt.now.Format(time.DateOnly)
			}
			o.lastScanHour = tt.lastScanHour
			o.lastThreshold = tt.lastThreshold

			gotCycle, gotWait := o.decide(tt.now)

			assert.Equal(t, tt.wantCycle, gotCycle)
			assert.Equal(t, tt.wantWait, gotWait)
		})
	}
}

func TestDecide_DigestOncePerDay(t *testing.T) {
	o := New(Deps{Ledger: ledger.New()}, DefaultSettings())
	o.lastDigestDay = at(6, 0, 0).Format(time.DateOnly)
	o.lastScanHour = at(6, 0, 0)
	o.lastThreshold = at(6, 0, 0)

	c, _ := o.decide(at(6, 1, 0))
	assert.NotEqual(t, cycleDigest, c)

	c, _ = o.decide(at(6, 1, 0).Add(24 * time.Hour))
	assert.Equal(t, cycleDigest, c)
}

func TestDecide_FollowsZone(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	s := DefaultSettings()
	s.Zone = zone
	o := New(Deps{Ledger: ledger.New()}, s)
	o.lastThreshold = at(4, 0, 0)
	o.lastScanHour = at(4, 0, 0).In(zone).Truncate(time.Hour)

	// 04:01 UTC is 06:01 local.
	c, _ := o.decide(at(4, 1, 0))
	assert.Equal(t, cycleDigest, c)
}

func TestDecide_StartedMidHour(t *testing.T) {
	o := New(Deps{Ledger: ledger.New()}, DefaultSettings())
	o.primeSchedule(at(9, 20, 0))
	o.lastThreshold = at(9, 20, 0)

	c, _ := o.decide(at(9, 25, 0))
	assert.Equal(t, cycleNone, c)
	assert.True(t, o.Status().LastScan.IsZero())

	c, _ = o.decide(at(10, 0, 0))
	assert.Equal(t, cycleScan, c)
}

func TestDecide_StartedAtTopOfHour(t *testing.T) {
	o := New(Deps{Ledger: ledger.New()}, DefaultSettings())
	o.primeSchedule(at(9, 0, 20))
	o.lastThreshold = at(9, 0, 20)

	c, _ := o.decide(at(9, 0, 30))
	assert.Equal(t, cycleScan, c)
}

func TestRun_FollowsSchedule(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	// 05:58: the first threshold check runs, then the loop waits for 06:00.
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, h.registry.count("ActivePreferences"))
	assert.Zero(t, h.registry.count("LocationsByUser"))
	require.NoError(t, h.orch.CheckReadiness(ctx))

	// 06:00: digest and the hourly scan.
	h.clock.Advance(2 * time.Minute)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, h.registry.count("LocationsByUser"))
	assert.Equal(t, 1, h.registry.count("SavedLocations"))

	// 06:02 and 06:07: nothing due.
	h.clock.Advance(2 * time.Minute)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	h.clock.Advance(5 * time.Minute)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, h.registry.count("ActivePreferences"))

	// 06:08: the threshold interval has elapsed.
	h.clock.Advance(time.Minute)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, h.registry.count("ActivePreferences"))
	assert.Equal(t, 1, h.registry.count("LocationsByUser"))

	status := h.orch.Status()
	assert.True(t, status.Ready)
	assert.Equal(t, "2026-03-10", status.LastDigestDay)
	assert.Equal(t, at(6, 0, 0), status.LastScan)
	assert.Equal(t, at(6, 8, 0), status.LastThreshold)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRun_BacksOffOnRegistryFailure(t *testing.T) {
	h := newHarness(t)
	h.registry.setErr(errRegistryDown)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, h.registry.count("ActivePreferences"))
	require.Error(t, h.orch.CheckReadiness(ctx))

	h.clock.Advance(200 * time.Millisecond)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, h.registry.count("ActivePreferences"))

	// The next retry waits 400ms.
	h.clock.Advance(399 * time.Millisecond)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, h.registry.count("ActivePreferences"))

	h.registry.setErr(nil)
	h.clock.Advance(time.Millisecond)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 3, h.registry.count("ActivePreferences"))
	require.NoError(t, h.orch.CheckReadiness(ctx))

	cancel()
	require.NoError(t, <-done)
}

func TestCheckReadiness_NotReadyBeforeFirstCycle(t *testing.T) {
	h := newHarness(t)
	require.Error(t, h.orch.CheckReadiness(context.Background()))
}
