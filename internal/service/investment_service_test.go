package service

import (
	"errors"
	"testing"

	"investsystem/internal/model"
	"investsystem/internal/repository"
)

func TestCreateRequestValidate(t *testing.T) {
	valid := CreateRequest{
		UserIDs:         []int64{1, 2},
		Amount:          1000,
		ProfitPercent:   2.5,
		PayoutFrequency: 2,
		DurationDays:    7,
	}

	tests := []struct {
		name    string
		mutate  func(r *CreateRequest)
		wantErr bool
	}{
		{"valid", func(r *CreateRequest) {}, false},
		{"zero percent is legal", func(r *CreateRequest) { r.ProfitPercent = 0 }, false},
		{"empty users", func(r *CreateRequest) { r.UserIDs = nil }, true},
		{"zero amount", func(r *CreateRequest) { r.Amount = 0 }, true},
		{"negative amount", func(r *CreateRequest) { r.Amount = -100 }, true},
		{"negative percent", func(r *CreateRequest) { r.ProfitPercent = -1 }, true},
		{"zero frequency", func(r *CreateRequest) { r.PayoutFrequency = 0 }, true},
		{"zero duration", func(r *CreateRequest) { r.DurationDays = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			req.UserIDs = append([]int64(nil), valid.UserIDs...)
			tt.mutate(&req)

			err := req.validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("validate() = nil, want error")
				}
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("validate() = %v, want ErrInvalidArgument", err)
				}
				return
			}
			if err != nil {
				t.Errorf("validate() = %v, want nil", err)
			}
		})
	}
}

func TestCheckAvailableCovers(t *testing.T) {
	tests := []struct {
		name      string
		available float64
		amount    float64
		wantErr   error
	}{
		{"covers exactly", 500, 500, nil},
		{"covers with surplus", 1000, 500, nil},
		{"available 100 cannot cover 500", 100, 500, repository.ErrInsufficientFunds},
		{"zero balance", 0, 1, repository.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balance := &model.Balance{
				UserID:    42,
				Available: tt.available,
				Invested:  200,
				Version:   3,
			}

			err := checkAvailableCovers(balance, tt.amount)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("checkAvailableCovers() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("checkAvailableCovers() = %v, want %v", err, tt.wantErr)
			}

			// 校验失败不动账：余额字段和版本号都保持原样
			if balance.Available != tt.available {
				t.Errorf("Available = %.2f, want %.2f", balance.Available, tt.available)
			}
			if balance.Invested != 200 {
				t.Errorf("Invested = %.2f, want 200", balance.Invested)
			}
			if balance.Version != 3 {
				t.Errorf("Version = %d, want 3", balance.Version)
			}
		})
	}
}

func TestBalanceOpValidate(t *testing.T) {
	tests := []struct {
		name    string
		op      BalanceOp
		wantErr bool
	}{
		{
			"valid add",
			BalanceOp{Field: model.BalanceFieldAvailable, Mode: model.BalanceModeAdd, Amount: 10},
			false,
		},
		{
			"valid set to zero",
			BalanceOp{Field: model.BalanceFieldBonus, Mode: model.BalanceModeSet, Amount: 0},
			false,
		},
		{
			"unknown field rejected at boundary",
			BalanceOp{Field: "frozen", Mode: model.BalanceModeAdd, Amount: 10},
			true,
		},
		{
			"unknown mode rejected",
			BalanceOp{Field: model.BalanceFieldAvailable, Mode: "SUBTRACT", Amount: 10},
			true,
		},
		{
			"negative amount rejected",
			BalanceOp{Field: model.BalanceFieldAvailable, Mode: model.BalanceModeAdd, Amount: -5},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.validate()
			if tt.wantErr && err == nil {
				t.Fatal("validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validate() = %v, want nil", err)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("validate() = %v, want ErrInvalidArgument", err)
			}
		})
	}
}
