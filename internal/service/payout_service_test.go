package service

import (
	"errors"
	"testing"
	"time"

	"investsystem/internal/model"
	"investsystem/internal/repository"
)

func TestCheckForcePayable(t *testing.T) {
	started := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	base := model.Investment{
		InvestmentNo:    "INV202603010000000000001",
		UserID:          1,
		Amount:          1000,
		ProfitPercent:   1.5,
		PayoutFrequency: 1,
		DurationDays:    6,
		Status:          model.InvestmentStatusActive,
		StartedAt:       started,
		EndsAt:          started.AddDate(0, 0, 6),
	}

	tests := []struct {
		name    string
		mutate  func(inv *model.Investment)
		wantErr error
	}{
		{
			"active with remaining payouts",
			func(inv *model.Investment) { inv.PayoutsCompleted = 2 },
			nil,
		},
		{
			"last remaining payout still allowed",
			func(inv *model.Investment) { inv.PayoutsCompleted = 5 },
			nil,
		},
		{
			"all payouts completed",
			func(inv *model.Investment) { inv.PayoutsCompleted = 6 },
			ErrScheduleExhausted,
		},
		{
			"cancelled investment",
			func(inv *model.Investment) { inv.Status = model.InvestmentStatusCancelled },
			repository.ErrInvalidStateTransition,
		},
		{
			"completed investment",
			func(inv *model.Investment) {
				inv.Status = model.InvestmentStatusCompleted
				inv.PayoutsCompleted = 6
			},
			repository.ErrInvalidStateTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := base
			tt.mutate(&inv)

			err := checkForcePayable(&inv)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("checkForcePayable() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("checkForcePayable() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
