package repository

import (
	"context"
	"errors"
	"fmt"

	"investsystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBalanceNotFound   = errors.New("余额账户不存在")
	ErrInsufficientFunds = errors.New("可用余额不足")
	ErrOptimisticLock    = errors.New("乐观锁冲突，请重试")
	ErrUnknownField      = errors.New("未知余额字段")
	ErrUnknownMode       = errors.New("未知操作模式")
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetByUserID(ctx context.Context, userID int64) (*model.Balance, error) {
	var balance model.Balance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

func (r *BalanceRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Balance, error) {
	balance, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return balance, nil
	}

	if !errors.Is(err, ErrBalanceNotFound) {
		return nil, err
	}

	newBalance := &model.Balance{
		UserID: userID,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newBalance).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// columnName 余额字段对应的数据库列名
// 封闭映射，未知字段直接拒绝
func columnName(field string) (string, error) {
	switch field {
	case model.BalanceFieldAvailable:
		return "available", nil
	case model.BalanceFieldInvested:
		return "invested", nil
	case model.BalanceFieldTotalProfit:
		return "total_profit", nil
	case model.BalanceFieldBonus:
		return "bonus", nil
	}
	return "", ErrUnknownField
}

// ApplyDelta 按模式更新指定余额字段，带乐观锁版本校验
//
// 【关键点】REDUCE 用 GREATEST(x - ?, 0) 在数据库侧截断到0，
// 读-算-写之间即使有并发变动也不会把字段写成负数
func (r *BalanceRepository) ApplyDelta(ctx context.Context, tx *gorm.DB, userID int64, field string, amount float64, mode string, version int) error {
	if tx == nil {
		tx = r.db
	}

	column, err := columnName(field)
	if err != nil {
		return err
	}

	var expr interface{}
	switch mode {
	case model.BalanceModeAdd:
		expr = gorm.Expr(fmt.Sprintf("%s + ?", column), amount)
	case model.BalanceModeReduce:
		expr = gorm.Expr(fmt.Sprintf("GREATEST(%s - ?, 0)", column), amount)
	case model.BalanceModeSet:
		expr = amount
	default:
		return ErrUnknownMode
	}

	result := tx.WithContext(ctx).
		Model(&model.Balance{}).
		Where("user_id = ? AND version = ?", userID, version).
		Updates(map[string]interface{}{
			column:    expr,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByUserID(ctx, userID); err != nil {
			return err
		}
		return ErrOptimisticLock
	}

	return nil
}

// DeductAvailable 严格扣减可用余额，余额不足为硬失败
// 创建投资扣本金专用，与 REDUCE 的截断语义不同
func (r *BalanceRepository) DeductAvailable(ctx context.Context, tx *gorm.DB, userID int64, amount float64, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Balance{}).
		Where("user_id = ? AND available >= ? AND version = ?", userID, amount, version).
		Updates(map[string]interface{}{
			"available": gorm.Expr("available - ?", amount),
			"version":   gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		balance, err := r.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if balance.Available < amount {
			return ErrInsufficientFunds
		}
		return ErrOptimisticLock
	}

	return nil
}

// SumTotals 聚合全部用户的余额汇总（报表用，只读）
type BalanceTotals struct {
	Available   float64 `json:"available"`
	Invested    float64 `json:"invested"`
	TotalProfit float64 `json:"total_profit"`
	Bonus       float64 `json:"bonus"`
}

func (r *BalanceRepository) SumTotals(ctx context.Context) (*BalanceTotals, error) {
	var totals BalanceTotals
	err := r.db.WithContext(ctx).
		Model(&model.Balance{}).
		Select("COALESCE(SUM(available), 0) AS available, COALESCE(SUM(invested), 0) AS invested, COALESCE(SUM(total_profit), 0) AS total_profit, COALESCE(SUM(bonus), 0) AS bonus").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
