package model

import (
	"time"
)

// ============================================================================
// 资金流水类型常量
// ============================================================================

const (
	LedgerTypeInvest      = "INVEST"       // 创建投资，扣可用、加在投
	LedgerTypePayout      = "PAYOUT"       // 派息入账
	LedgerTypePrincipal   = "PRINCIPAL"    // 取消/终止退回本金
	LedgerTypeAdminAdjust = "ADMIN_ADJUST" // 管理员手工调整
	LedgerTypeDeposit     = "DEPOSIT"      // 入金审核通过入账
	LedgerTypeWithdrawal  = "WITHDRAWAL"   // 出金审核通过扣款
)

// ============================================================================
// 资金流水实体
// ============================================================================

// LedgerEntry 余额流水表
// 记录每个余额字段的每一笔变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 每笔流水记录关联单号与操作人 —— 便于追责
// 3. 记录变动前后的字段值 —— 便于校验余额一致性
type LedgerEntry struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"` // 流水号（全局唯一）
	UserID      int64     `gorm:"index;not null" json:"user_id"`
	Field       string    `gorm:"type:varchar(20);not null" json:"field"`                 // 变动的余额字段
	Mode        string    `gorm:"type:varchar(10);not null" json:"mode"`                  // ADD / REDUCE / SET
	Amount      float64   `gorm:"type:decimal(15,2);not null" json:"amount"`              // 操作金额
	ValueBefore float64   `gorm:"type:decimal(15,2);not null" json:"value_before"`        // 变动前字段值
	ValueAfter  float64   `gorm:"type:decimal(15,2);not null" json:"value_after"`         // 变动后字段值
	Type        string    `gorm:"type:varchar(20);not null" json:"type"`                  // 流水类型
	RefNo       string    `gorm:"type:varchar(64);index" json:"ref_no"`                   // 关联投资单号，手工调整时为空
	Operator    string    `gorm:"type:varchar(64)" json:"operator"`                       // 操作管理员，调度器为 system
	Remark      string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
