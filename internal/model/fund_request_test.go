package model

import "testing"

func TestCanReview(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{FundRequestStatusPending, true},
		{FundRequestStatusApproved, false},
		{FundRequestStatusRejected, false},
		{"UNKNOWN", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := CanReview(tt.status); got != tt.want {
				t.Errorf("CanReview(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}
