package model

import (
	"time"
)

// ============================================================================
// 余额字段与操作模式常量
// ============================================================================

// 余额字段，封闭枚举，边界层拒绝未知字段
const (
	BalanceFieldAvailable   = "available"    // 可用余额
	BalanceFieldInvested    = "invested"     // 在投本金
	BalanceFieldTotalProfit = "total_profit" // 累计收益
	BalanceFieldBonus       = "bonus"        // 奖励金
)

// 操作模式
const (
	BalanceModeAdd    = "ADD"    // 增加
	BalanceModeReduce = "REDUCE" // 减少（下限为0，不报错）
	BalanceModeSet    = "SET"    // 直接覆盖
)

// IsValidBalanceField 校验余额字段是否合法
func IsValidBalanceField(field string) bool {
	switch field {
	case BalanceFieldAvailable, BalanceFieldInvested, BalanceFieldTotalProfit, BalanceFieldBonus:
		return true
	}
	return false
}

// IsValidBalanceMode 校验操作模式是否合法
func IsValidBalanceMode(mode string) bool {
	switch mode {
	case BalanceModeAdd, BalanceModeReduce, BalanceModeSet:
		return true
	}
	return false
}

// ApplyBalanceMode 计算模式作用后的余额
//
// 【关键点】REDUCE 超出当前余额时截断为0而不是报错
// 管理端基于页面上可能过期的余额发起操作，报错会阻塞操作流程
func ApplyBalanceMode(current, amount float64, mode string) float64 {
	switch mode {
	case BalanceModeAdd:
		return current + amount
	case BalanceModeReduce:
		result := current - amount
		if result < 0 {
			return 0
		}
		return result
	case BalanceModeSet:
		return amount
	}
	return current
}

// ============================================================================
// 用户余额实体
// ============================================================================

// Balance 用户余额表
// 四个独立的余额字段，是整个投资系统的核心资金数据
// 固定字段建模，不使用开放 map，避免字段名拼写类错误
type Balance struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"uniqueIndex;not null" json:"user_id"`                        // 用户ID，业务方传入
	Available   float64   `gorm:"type:decimal(15,2);not null;default:0" json:"available"`     // 可用余额
	Invested    float64   `gorm:"type:decimal(15,2);not null;default:0" json:"invested"`      // 在投本金
	TotalProfit float64   `gorm:"type:decimal(15,2);not null;default:0" json:"total_profit"`  // 累计收益
	Bonus       float64   `gorm:"type:decimal(15,2);not null;default:0" json:"bonus"`         // 奖励金
	Version     int       `gorm:"not null;default:0" json:"version"`                          // 乐观锁版本号
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Balance) TableName() string {
	return "balance"
}

// FieldValue 读取指定字段的当前值
func (b *Balance) FieldValue(field string) float64 {
	switch field {
	case BalanceFieldAvailable:
		return b.Available
	case BalanceFieldInvested:
		return b.Invested
	case BalanceFieldTotalProfit:
		return b.TotalProfit
	case BalanceFieldBonus:
		return b.Bonus
	}
	return 0
}
