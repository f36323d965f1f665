package repository

import (
	"context"
	"errors"
	"time"

	"investsystem/internal/model"

	"gorm.io/gorm"
)

var (
	ErrFundRequestNotFound = errors.New("出入金请求不存在")
	ErrRequestNotPending   = errors.New("请求已处理，不能重复审核")
)

type FundRequestRepository struct {
	db *gorm.DB
}

func NewFundRequestRepository(db *gorm.DB) *FundRequestRepository {
	return &FundRequestRepository{db: db}
}

func (r *FundRequestRepository) GetByID(ctx context.Context, id int64) (*model.FundRequest, error) {
	var req model.FundRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFundRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// List 按类型和状态分页查询，status 为空表示全部状态
func (r *FundRequestRepository) List(ctx context.Context, requestType, status string, page, pageSize int) ([]*model.FundRequest, int64, error) {
	var requests []*model.FundRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.FundRequest{}).Where("request_type = ?", requestType)
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
		Find(&requests).Error

	return requests, total, err
}

// Review 审核 CAS：只有 PENDING 状态能被改成 APPROVED/REJECTED
// 两个管理员同时审同一笔时只有一个能成功，另一个拿到已处理错误
func (r *FundRequestRepository) Review(ctx context.Context, tx *gorm.DB, id int64, toStatus, reviewer, note string) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.FundRequest{}).
		Where("id = ? AND status = ?", id, model.FundRequestStatusPending).
		Updates(map[string]interface{}{
			"status":      toStatus,
			"reviewed_by": reviewer,
			"reviewed_at": now,
			"note":        note,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrRequestNotPending
	}

	return nil
}
