package model

import (
	"time"
)

// ============================================================================
// 出入金请求常量
// ============================================================================

const (
	FundRequestTypeDeposit    = "DEPOSIT"    // 入金
	FundRequestTypeWithdrawal = "WITHDRAWAL" // 出金
)

const (
	FundRequestStatusPending  = "PENDING"  // 待审核
	FundRequestStatusApproved = "APPROVED" // 已通过，资金已变动
	FundRequestStatusRejected = "REJECTED" // 已驳回，资金不动
)

// CanReview 待审核的请求才能审核，已处理的请求是终态
func CanReview(currentStatus string) bool {
	return currentStatus == FundRequestStatusPending
}

// ============================================================================
// 出入金请求实体
// ============================================================================

// FundRequest 出入金请求表
// 用户侧接口写入待审核请求，管理端只做通过/驳回：
// 通过入金给可用余额入账，通过出金严格扣减可用余额，驳回不动资金
// 审核是单向终态，处理过的请求不能再审
type FundRequest struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestNo   string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_no"` // 请求单号（全局唯一）
	UserID      int64      `gorm:"index;not null" json:"user_id"`
	RequestType string     `gorm:"type:varchar(20);index;not null" json:"request_type"` // DEPOSIT / WITHDRAWAL
	Amount      float64    `gorm:"type:decimal(15,2);not null" json:"amount"`
	Status      string     `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	Note        string     `gorm:"type:varchar(256)" json:"note"`        // 审核备注
	ReviewedBy  string     `gorm:"type:varchar(64)" json:"reviewed_by"`  // 审核管理员
	ReviewedAt  *time.Time `json:"reviewed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FundRequest) TableName() string {
	return "fund_request"
}
