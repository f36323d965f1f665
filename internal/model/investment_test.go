package model

import (
	"testing"
	"time"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"active to completed", InvestmentStatusActive, InvestmentStatusCompleted, true},
		{"active to cancelled", InvestmentStatusActive, InvestmentStatusCancelled, true},
		{"active to stopped", InvestmentStatusActive, InvestmentStatusStopped, true},
		{"completed is terminal", InvestmentStatusCompleted, InvestmentStatusActive, false},
		{"cancelled is terminal", InvestmentStatusCancelled, InvestmentStatusActive, false},
		{"stopped is terminal", InvestmentStatusStopped, InvestmentStatusActive, false},
		{"no stopped to cancelled", InvestmentStatusStopped, InvestmentStatusCancelled, false},
		{"unknown status", "UNKNOWN", InvestmentStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionTo(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPayoutAmount(t *testing.T) {
	tests := []struct {
		name          string
		amount        float64
		profitPercent float64
		want          float64
	}{
		{"10000 at 1.8 percent", 10000, 1.8, 180.00},
		{"1000 at 2.5 percent", 1000, 2.5, 25.00},
		{"500 at 0 percent", 500, 0, 0},
		{"rounds to cents", 333, 1.5, 5.00}, // 333 × 1.5% = 4.995 → 5.00
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &Investment{Amount: tt.amount, ProfitPercent: tt.profitPercent}
			if got := inv.PayoutAmount(); got != tt.want {
				t.Errorf("PayoutAmount() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTotalExpectedProfit(t *testing.T) {
	// amount=10000, 1.8%, 1次/天, 6天 → 单次180.00, 总收益1080.00
	inv := &Investment{Amount: 10000, ProfitPercent: 1.8, PayoutFrequency: 1, DurationDays: 6}

	if got := inv.TotalPayouts(); got != 6 {
		t.Fatalf("TotalPayouts() = %d, want 6", got)
	}
	total := float64(inv.TotalPayouts()) * inv.PayoutAmount()
	if total != 1080.00 {
		t.Errorf("total profit = %v, want 1080.00", total)
	}
}

func TestPayoutInterval(t *testing.T) {
	tests := []struct {
		frequency int
		want      time.Duration
	}{
		{1, 24 * time.Hour},
		{2, 12 * time.Hour},
		{3, 8 * time.Hour},
		{4, 6 * time.Hour},
	}

	for _, tt := range tests {
		inv := &Investment{PayoutFrequency: tt.frequency}
		if got := inv.PayoutInterval(); got != tt.want {
			t.Errorf("PayoutInterval() with frequency %d = %v, want %v", tt.frequency, got, tt.want)
		}
	}
}

func TestElapsedIntervals(t *testing.T) {
	started := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	newInv := func(completed int, lastPayoutAt *time.Time) *Investment {
		return &Investment{
			Amount:           10000,
			ProfitPercent:    1.8,
			PayoutFrequency:  1,
			DurationDays:     6,
			StartedAt:        started,
			LastPayoutAt:     lastPayoutAt,
			PayoutsCompleted: completed,
		}
	}

	afterTwo := started.Add(48 * time.Hour)

	tests := []struct {
		name string
		inv  *Investment
		now  time.Time
		want int
	}{
		{"nothing due yet", newInv(0, nil), started.Add(12 * time.Hour), 0},
		{"exactly one interval", newInv(0, nil), started.Add(24 * time.Hour), 1},
		{"three missed intervals", newInv(0, nil), started.Add(3*24*time.Hour + 5*time.Minute), 3},
		{"capped at remaining", newInv(4, nil), started.Add(100 * 24 * time.Hour), 2},
		{"schedule exhausted", newInv(6, nil), started.Add(100 * 24 * time.Hour), 0},
		{"clock skew before start", newInv(0, nil), started.Add(-1 * time.Hour), 0},
		{"reference is last payout", newInv(2, &afterTwo), started.Add(49 * time.Hour), 0},
		{"one due after last payout", newInv(2, &afterTwo), started.Add(72 * time.Hour), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.inv.ElapsedIntervals(tt.now); got != tt.want {
				t.Errorf("ElapsedIntervals() = %d, want %d", got, tt.want)
			}
		})
	}
}

// 网格对齐：n 次派息后的基准时间是 基准 + n×间隔，而不是调度器跑到的时刻
func TestNextPayoutAfterGridAligned(t *testing.T) {
	started := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	inv := &Investment{
		PayoutFrequency:  2,
		DurationDays:     5,
		StartedAt:        started,
		PayoutsCompleted: 0,
	}

	got := inv.NextPayoutAfter(3)
	want := started.Add(36 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("NextPayoutAfter(3) = %v, want %v", got, want)
	}
}

// 幂等性：结算推进后立刻再算一次，没有新的到期派息
func TestElapsedIntervalsIdempotent(t *testing.T) {
	started := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	now := started.Add(3*24*time.Hour + 10*time.Minute)

	inv := &Investment{
		Amount:          10000,
		ProfitPercent:   1.8,
		PayoutFrequency: 1,
		DurationDays:    6,
		StartedAt:       started,
	}

	n := inv.ElapsedIntervals(now)
	if n != 3 {
		t.Fatalf("first pass: ElapsedIntervals() = %d, want 3", n)
	}

	// 模拟结算落库后的记录状态
	last := inv.NextPayoutAfter(n)
	inv.LastPayoutAt = &last
	inv.PayoutsCompleted += n

	if again := inv.ElapsedIntervals(now); again != 0 {
		t.Errorf("second pass immediately after: ElapsedIntervals() = %d, want 0", again)
	}
}

// 补发等价性：3个间隔一次结清，与每个间隔单独结算一次，最终进度和总收益一致
func TestCatchUpEquivalence(t *testing.T) {
	started := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	now := started.Add(3 * 24 * time.Hour)

	oneShot := &Investment{
		Amount: 10000, ProfitPercent: 1.8, PayoutFrequency: 1, DurationDays: 6,
		StartedAt: started,
	}
	stepwise := &Investment{
		Amount: 10000, ProfitPercent: 1.8, PayoutFrequency: 1, DurationDays: 6,
		StartedAt: started,
	}

	settle := func(inv *Investment, now time.Time) float64 {
		n := inv.ElapsedIntervals(now)
		if n == 0 {
			return 0
		}
		last := inv.NextPayoutAfter(n)
		inv.LastPayoutAt = &last
		inv.PayoutsCompleted += n
		return float64(n) * inv.PayoutAmount()
	}

	profitOneShot := settle(oneShot, now)

	var profitStepwise float64
	for tick := 1; tick <= 3; tick++ {
		profitStepwise += settle(stepwise, started.Add(time.Duration(tick)*24*time.Hour))
	}

	if oneShot.PayoutsCompleted != stepwise.PayoutsCompleted {
		t.Errorf("payoutsCompleted: one-shot %d, stepwise %d", oneShot.PayoutsCompleted, stepwise.PayoutsCompleted)
	}
	if profitOneShot != profitStepwise {
		t.Errorf("profit: one-shot %v, stepwise %v", profitOneShot, profitStepwise)
	}
	if profitOneShot != 540.00 {
		t.Errorf("profit = %v, want 540.00", profitOneShot)
	}
	if !oneShot.LastPayoutAt.Equal(*stepwise.LastPayoutAt) {
		t.Errorf("lastPayoutAt: one-shot %v, stepwise %v", oneShot.LastPayoutAt, stepwise.LastPayoutAt)
	}
}

func TestRemainingPayouts(t *testing.T) {
	inv := &Investment{PayoutFrequency: 2, DurationDays: 3, PayoutsCompleted: 4}
	if got := inv.RemainingPayouts(); got != 2 {
		t.Errorf("RemainingPayouts() = %d, want 2", got)
	}

	// 条款被改小后已派次数可能超过新总数，剩余按0处理
	inv.PayoutsCompleted = 10
	if got := inv.RemainingPayouts(); got != 0 {
		t.Errorf("RemainingPayouts() overdrawn = %d, want 0", got)
	}
}
