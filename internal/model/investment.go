package model

import (
	"math"
	"time"
)

// ============================================================================
// 投资状态常量与状态机
// ============================================================================

const (
	InvestmentStatusActive    = "ACTIVE"    // 进行中，调度器会扫描
	InvestmentStatusCompleted = "COMPLETED" // 全部派息完成
	InvestmentStatusCancelled = "CANCELLED" // 取消，本金已退回
	InvestmentStatusStopped   = "STOPPED"   // 管理员强制终止，本金已退回
)

// 状态流转单向，终态不可复活
var ValidStatusTransitions = map[string][]string{
	InvestmentStatusActive: {InvestmentStatusCompleted, InvestmentStatusCancelled, InvestmentStatusStopped},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsValidInvestmentStatus 校验状态过滤值是否合法（列表查询用）
func IsValidInvestmentStatus(status string) bool {
	switch status {
	case InvestmentStatusActive, InvestmentStatusCompleted, InvestmentStatusCancelled, InvestmentStatusStopped:
		return true
	}
	return false
}

// ============================================================================
// 投资实体
// ============================================================================

// Investment 投资记录表
// 管理员为用户创建的投资配置，调度器按固定网格派息
// 终态记录永不物理删除，保留审计
type Investment struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	InvestmentNo     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"investment_no"`  // 投资单号（全局唯一）
	UserID           int64      `gorm:"index;not null" json:"user_id"`                               // 用户ID
	Amount           float64    `gorm:"type:decimal(15,2);not null" json:"amount"`                   // 本金，创建后不可变
	ProfitPercent    float64    `gorm:"type:decimal(8,4);not null" json:"profit_percent"`            // 每次派息占本金百分比
	PayoutFrequency  int        `gorm:"not null" json:"payout_frequency"`                            // 每天派息次数
	DurationDays     int        `gorm:"not null" json:"duration_days"`                               // 投资天数
	Status           string     `gorm:"type:varchar(20);index;not null" json:"status"`
	StartedAt        time.Time  `gorm:"not null" json:"started_at"`
	EndsAt           time.Time  `gorm:"not null" json:"ends_at"` // = StartedAt + DurationDays
	LastPayoutAt     *time.Time `json:"last_payout_at"`          // 最近一次派息的网格时间
	PayoutsCompleted int        `gorm:"not null;default:0" json:"payouts_completed"`
	CreatedBy        string     `gorm:"type:varchar(64)" json:"created_by"` // 操作管理员
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Investment) TableName() string {
	return "investment"
}

// ============================================================================
// 派息计划计算
// ============================================================================
//
// 【网格对齐】派息时间点 = StartedAt + k × 间隔，k = 1,2,3...
// 调度器什么时候跑不影响网格，LastPayoutAt 永远落在网格点上，
// 避免每次 tick 的抖动在计划上累积漂移

// TotalPayouts 计划内派息总次数
func (inv *Investment) TotalPayouts() int {
	return inv.PayoutFrequency * inv.DurationDays
}

// RemainingPayouts 剩余可派息次数
func (inv *Investment) RemainingPayouts() int {
	remaining := inv.TotalPayouts() - inv.PayoutsCompleted
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PayoutInterval 派息间隔 = 24h / 每天次数
func (inv *Investment) PayoutInterval() time.Duration {
	return 24 * time.Hour / time.Duration(inv.PayoutFrequency)
}

// PayoutAmount 单次派息金额 = 本金 × 百分比 / 100，四舍五入到分
// 先取整再乘，保证 n 次派息入账恰好等于 n × 单次金额
func (inv *Investment) PayoutAmount() float64 {
	return math.Round(inv.Amount*inv.ProfitPercent) / 100
}

// PayoutReference 派息计算的基准时间
// 已派过息用上一次的网格时间，否则用开始时间
func (inv *Investment) PayoutReference() time.Time {
	if inv.LastPayoutAt != nil {
		return *inv.LastPayoutAt
	}
	return inv.StartedAt
}

// ElapsedIntervals 自基准时间起已到期的派息次数，封顶剩余次数
//
// 【关键点】封顶逻辑天然覆盖补发场景：调度器停机错过多个间隔后，
// 一次扫描把欠的全部算出来，欠多少派多少，不丢不重
// now 早于基准时间（时钟回拨）时返回0，不做任何事
func (inv *Investment) ElapsedIntervals(now time.Time) int {
	ref := inv.PayoutReference()
	if !now.After(ref) {
		return 0
	}
	elapsed := int(now.Sub(ref) / inv.PayoutInterval())
	if remaining := inv.RemainingPayouts(); elapsed > remaining {
		return remaining
	}
	return elapsed
}

// NextPayoutAfter n 次派息后的网格时间 = 基准时间 + n × 间隔
func (inv *Investment) NextPayoutAfter(n int) time.Time {
	return inv.PayoutReference().Add(time.Duration(n) * inv.PayoutInterval())
}
