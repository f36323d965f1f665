package service

import (
	"errors"
	"testing"

	"investsystem/internal/model"
	"investsystem/internal/repository"
)

func TestCheckReviewable(t *testing.T) {
	tests := []struct {
		name        string
		req         model.FundRequest
		requestType string
		wantErr     error
	}{
		{
			"pending deposit reviewable",
			model.FundRequest{RequestType: model.FundRequestTypeDeposit, Status: model.FundRequestStatusPending},
			model.FundRequestTypeDeposit,
			nil,
		},
		{
			"pending withdrawal reviewable",
			model.FundRequest{RequestType: model.FundRequestTypeWithdrawal, Status: model.FundRequestStatusPending},
			model.FundRequestTypeWithdrawal,
			nil,
		},
		{
			"withdrawal endpoint cannot review deposit",
			model.FundRequest{RequestType: model.FundRequestTypeDeposit, Status: model.FundRequestStatusPending},
			model.FundRequestTypeWithdrawal,
			ErrInvalidArgument,
		},
		{
			"approved request is final",
			model.FundRequest{RequestType: model.FundRequestTypeDeposit, Status: model.FundRequestStatusApproved},
			model.FundRequestTypeDeposit,
			repository.ErrRequestNotPending,
		},
		{
			"rejected request is final",
			model.FundRequest{RequestType: model.FundRequestTypeWithdrawal, Status: model.FundRequestStatusRejected},
			model.FundRequestTypeWithdrawal,
			repository.ErrRequestNotPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkReviewable(&tt.req, tt.requestType)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("checkReviewable() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("checkReviewable() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
