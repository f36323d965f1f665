package repository

import (
	"context"
	"errors"
	"time"

	"investsystem/internal/model"

	"gorm.io/gorm"
)

var (
	ErrInvestmentNotFound     = errors.New("投资记录不存在")
	ErrInvalidStateTransition = errors.New("投资状态不允许该操作")
	ErrScheduleConflict       = errors.New("派息进度已被并发更新，请重试")
)

type InvestmentRepository struct {
	db *gorm.DB
}

func NewInvestmentRepository(db *gorm.DB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

func (r *InvestmentRepository) Create(ctx context.Context, tx *gorm.DB, investment *model.Investment) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(investment).Error
}

func (r *InvestmentRepository) GetByID(ctx context.Context, id int64) (*model.Investment, error) {
	var investment model.Investment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&investment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvestmentNotFound
		}
		return nil, err
	}
	return &investment, nil
}

func (r *InvestmentRepository) GetByInvestmentNo(ctx context.Context, investmentNo string) (*model.Investment, error) {
	var investment model.Investment
	err := r.db.WithContext(ctx).Where("investment_no = ?", investmentNo).First(&investment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvestmentNotFound
		}
		return nil, err
	}
	return &investment, nil
}

// List 按状态过滤分页查询，status 为空表示全部
func (r *InvestmentRepository) List(ctx context.Context, status string, page, pageSize int) ([]*model.Investment, int64, error) {
	var investments []*model.Investment
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Investment{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&investments).Error

	return investments, total, err
}

func (r *InvestmentRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Investment, int64, error) {
	var investments []*model.Investment
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Investment{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&investments).Error

	return investments, total, err
}

// GetDueInvestments 扫描已到派息时间的进行中投资
// 到期条件：now ≥ 基准时间 + 间隔，基准时间 = last_payout_at，首次派息为 started_at
// 间隔 = 24h / 每天次数，这里用秒在 SQL 里算
// 欠得最久的排在最前，到期记录超出单批上限时后面的批次不会饿死晚到的记录
func (r *InvestmentRepository) GetDueInvestments(ctx context.Context, now time.Time, limit int) ([]*model.Investment, error) {
	var investments []*model.Investment
	err := r.db.WithContext(ctx).
		Where("status = ?", model.InvestmentStatusActive).
		Where("TIMESTAMPDIFF(SECOND, COALESCE(last_payout_at, started_at), ?) >= 86400 / payout_frequency", now).
		Order("COALESCE(last_payout_at, started_at) ASC").
		Limit(limit).
		Find(&investments).Error
	return investments, err
}

// UpdateStatus 状态 CAS 流转，当前状态不匹配时失败
func (r *InvestmentRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrInvalidStateTransition
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Investment{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrInvalidStateTransition
	}

	return nil
}

// AdvanceSchedule 推进派息进度，CAS 条件同时校验状态与当前进度
//
// 【关键点】WHERE 里带上 status = ACTIVE 和 payouts_completed = 原值，
// 事务内再次确认记录没有被并发的取消/终止或另一次派息改过，
// 避免经典的先检查后执行竞态（丢失更新/双重派息）
func (r *InvestmentRepository) AdvanceSchedule(ctx context.Context, tx *gorm.DB, id int64, fromCompleted, n int, lastPayoutAt time.Time, completed bool) error {
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"payouts_completed": fromCompleted + n,
		"last_payout_at":    lastPayoutAt,
	}
	if completed {
		updates["status"] = model.InvestmentStatusCompleted
	}

	result := tx.WithContext(ctx).
		Model(&model.Investment{}).
		Where("id = ? AND status = ? AND payouts_completed = ?", id, model.InvestmentStatusActive, fromCompleted).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrScheduleConflict
	}

	return nil
}

// UpdateTerms 修改进行中投资的条款，仅限 ACTIVE
// 已完成的派息次数与网格基准不回写，只影响后续计算
func (r *InvestmentRepository) UpdateTerms(ctx context.Context, tx *gorm.DB, id int64, profitPercent float64, payoutFrequency, durationDays int, endsAt time.Time) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Investment{}).
		Where("id = ? AND status = ?", id, model.InvestmentStatusActive).
		Updates(map[string]interface{}{
			"profit_percent":   profitPercent,
			"payout_frequency": payoutFrequency,
			"duration_days":    durationDays,
			"ends_at":          endsAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrInvalidStateTransition
	}

	return nil
}

// CountByStatus 各状态投资数量（报表用）
func (r *InvestmentRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}

	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&model.Investment{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// SumActivePrincipal 进行中投资的本金总额（报表用）
func (r *InvestmentRepository) SumActivePrincipal(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&model.Investment{}).
		Where("status = ?", model.InvestmentStatusActive).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
