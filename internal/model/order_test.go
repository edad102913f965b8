package model

import (
	"math"
	"testing"
)

func u64(v uint64) *uint64 { return &v }
func i64(v int64) *int64    { return &v }

func TestIsStopTriggered(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		price uint64
		want  bool
	}{
		{"no stop", Order{Side: Buy}, 500, false},
		{"buy below stop", Order{Side: Buy, StopPrice: u64(100)}, 99, false},
		{"buy at stop", Order{Side: Buy, StopPrice: u64(100)}, 100, true},
		{"buy above stop", Order{Side: Buy, StopPrice: u64(100)}, 150, true},
		{"sell above stop", Order{Side: Sell, StopPrice: u64(100)}, 101, false},
		{"sell at stop", Order{Side: Sell, StopPrice: u64(100)}, 100, true},
		{"sell below stop", Order{Side: Sell, StopPrice: u64(100)}, 20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.order.IsStopTriggered(tt.price); got != tt.want {
				t.Errorf("IsStopTriggered(%d) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestDisplayedSize(t *testing.T) {
	o := Order{RemainingSize: 40}
	if got := o.DisplayedSize(); got != 40 {
		t.Errorf("plain order shows %d, want 40", got)
	}
	o.VisibleSize = u64(10)
	if got := o.DisplayedSize(); got != 10 {
		t.Errorf("iceberg shows %d, want 10", got)
	}
	o.RemainingSize = 4
	if got := o.DisplayedSize(); got != 4 {
		t.Errorf("iceberg tail shows %d, want 4", got)
	}
}

func TestShouldExecuteTWAP(t *testing.T) {
	o := Order{}
	if o.ShouldExecuteTWAP(1_000) {
		t.Error("non-TWAP order should never execute")
	}
	o.TWAPInterval = i64(60)
	o.TWAPLastExecution = i64(1_000)
	if o.ShouldExecuteTWAP(1_059) {
		t.Error("slice due too early")
	}
	if !o.ShouldExecuteTWAP(1_060) {
		t.Error("slice should be due at last+interval")
	}
}

func TestShouldExecuteTWAP_HugeIntervalNeverDue(t *testing.T) {
	o := Order{TWAPInterval: i64(math.MaxInt64), TWAPLastExecution: i64(1_700_000_000)}
	for _, now := range []int64{1_700_000_000, 1_700_000_001, math.MaxInt64} {
		if o.ShouldExecuteTWAP(now) {
			t.Errorf("slice reported due at %d with an interval past the end of time", now)
		}
	}
	o.TWAPInterval = i64(math.MaxInt64 - 1_700_000_000)
	if !o.ShouldExecuteTWAP(math.MaxInt64) {
		t.Error("slice due exactly at MaxInt64 should execute")
	}
}

func TestExpiryAndActivity(t *testing.T) {
	o := Order{Status: PartiallyFilled, ExpiresAt: 0}
	if o.IsExpired(1 << 40) {
		t.Error("expires_at 0 never expires")
	}
	o.ExpiresAt = 100
	if o.IsExpired(99) || !o.IsExpired(100) {
		t.Error("expiry should be inclusive of expires_at")
	}
	if !o.IsActive() {
		t.Error("partially filled order is active")
	}
	o.Status = Cancelled
	if o.IsActive() {
		t.Error("cancelled order is not active")
	}
}

func TestFillPercentage(t *testing.T) {
	o := Order{Size: 3, FilledSize: 1}
	if got := o.FillPercentage(); got != 33 {
		t.Errorf("FillPercentage = %d, want 33", got)
	}
	o.FilledSize = 3
	if got := o.FillPercentage(); got != 100 {
		t.Errorf("FillPercentage = %d, want 100", got)
	}
}
