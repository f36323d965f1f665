package model

import (
	"testing"
)

func TestApplyBalanceMode(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		amount  float64
		mode    string
		want    float64
	}{
		{"add", 100, 50, BalanceModeAdd, 150},
		{"add to zero", 0, 25.5, BalanceModeAdd, 25.5},
		{"reduce", 100, 40, BalanceModeReduce, 60},
		{"reduce exact", 100, 100, BalanceModeReduce, 0},
		{"reduce clamps at zero", 100, 250, BalanceModeReduce, 0},
		{"set overwrites", 100, 42, BalanceModeSet, 42},
		{"set to zero", 100, 0, BalanceModeSet, 0},
		{"unknown mode keeps value", 100, 50, "BOGUS", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApplyBalanceMode(tt.current, tt.amount, tt.mode); got != tt.want {
				t.Errorf("ApplyBalanceMode(%v, %v, %s) = %v, want %v", tt.current, tt.amount, tt.mode, got, tt.want)
			}
		})
	}
}

func TestIsValidBalanceField(t *testing.T) {
	valid := []string{BalanceFieldAvailable, BalanceFieldInvested, BalanceFieldTotalProfit, BalanceFieldBonus}
	for _, field := range valid {
		if !IsValidBalanceField(field) {
			t.Errorf("IsValidBalanceField(%s) = false, want true", field)
		}
	}

	// 未知字段在边界直接拒绝
	for _, field := range []string{"", "frozen", "Available", "total-profit"} {
		if IsValidBalanceField(field) {
			t.Errorf("IsValidBalanceField(%s) = true, want false", field)
		}
	}
}

func TestIsValidBalanceMode(t *testing.T) {
	for _, mode := range []string{BalanceModeAdd, BalanceModeReduce, BalanceModeSet} {
		if !IsValidBalanceMode(mode) {
			t.Errorf("IsValidBalanceMode(%s) = false, want true", mode)
		}
	}
	for _, mode := range []string{"", "add", "SUBTRACT", "DELETE"} {
		if IsValidBalanceMode(mode) {
			t.Errorf("IsValidBalanceMode(%s) = true, want false", mode)
		}
	}
}

func TestBalanceFieldValue(t *testing.T) {
	b := &Balance{Available: 1.5, Invested: 2.5, TotalProfit: 3.5, Bonus: 4.5}

	tests := []struct {
		field string
		want  float64
	}{
		{BalanceFieldAvailable, 1.5},
		{BalanceFieldInvested, 2.5},
		{BalanceFieldTotalProfit, 3.5},
		{BalanceFieldBonus, 4.5},
		{"unknown", 0},
	}

	for _, tt := range tests {
		if got := b.FieldValue(tt.field); got != tt.want {
			t.Errorf("FieldValue(%s) = %v, want %v", tt.field, got, tt.want)
		}
	}
}
