package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/infrastructure/lock"
	"investsystem/internal/model"
	"investsystem/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// FundService 出入金审核服务
// 用户侧接口写入待审核请求，这里只做通过/驳回：
// 通过入金给可用余额入账，通过出金严格扣减可用余额（不足即硬失败），
// 驳回只改状态不动资金。审核是单向终态，重复审核被 CAS 拦下
type FundService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	fundRepo    *repository.FundRequestRepository
	balanceRepo *repository.BalanceRepository
	outboxRepo  *repository.OutboxRepository
	ledger      *LedgerService
}

func NewFundService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *FundService {
	return &FundService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		fundRepo:    repository.NewFundRequestRepository(db),
		balanceRepo: repository.NewBalanceRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		ledger:      NewLedgerService(db, redisClient, cfg),
	}
}

// List 按类型和状态分页查询出入金请求，status 为空表示全部
func (s *FundService) List(ctx context.Context, requestType, status string, page, pageSize int) ([]*model.FundRequest, int64, error) {
	if requestType != model.FundRequestTypeDeposit && requestType != model.FundRequestTypeWithdrawal {
		return nil, 0, fmt.Errorf("%w: 未知请求类型 %s", ErrInvalidArgument, requestType)
	}
	if status != "" && !model.CanReview(status) &&
		status != model.FundRequestStatusApproved && status != model.FundRequestStatusRejected {
		return nil, 0, fmt.Errorf("%w: 未知状态 %s", ErrInvalidArgument, status)
	}
	return s.fundRepo.List(ctx, requestType, status, page, pageSize)
}

// ApproveDeposit 入金审核通过：可用余额入账
func (s *FundService) ApproveDeposit(ctx context.Context, operator string, requestID int64, note string) (*model.FundRequest, error) {
	return s.approve(ctx, operator, requestID, model.FundRequestTypeDeposit, note)
}

// ApproveWithdrawal 出金审核通过：严格扣减可用余额
// 余额不足为硬失败，请求保持 PENDING，不截断扣款
func (s *FundService) ApproveWithdrawal(ctx context.Context, operator string, requestID int64, note string) (*model.FundRequest, error) {
	return s.approve(ctx, operator, requestID, model.FundRequestTypeWithdrawal, note)
}

// RejectDeposit 驳回入金请求，资金不动
func (s *FundService) RejectDeposit(ctx context.Context, operator string, requestID int64, note string) (*model.FundRequest, error) {
	return s.reject(ctx, operator, requestID, model.FundRequestTypeDeposit, note)
}

// RejectWithdrawal 驳回出金请求，资金不动
func (s *FundService) RejectWithdrawal(ctx context.Context, operator string, requestID int64, note string) (*model.FundRequest, error) {
	return s.reject(ctx, operator, requestID, model.FundRequestTypeWithdrawal, note)
}

func (s *FundService) approve(ctx context.Context, operator string, requestID int64, requestType, note string) (*model.FundRequest, error) {
	req, err := s.loadForReview(ctx, requestID, requestType)
	if err != nil {
		return nil, err
	}

	// 按用户维度加锁，审核与其他余额操作互斥
	balanceLock := lock.NewBalanceLock(s.redisClient, req.UserID, operator)
	err = balanceLock.Lock(ctx, s.lockRetryInterval(), s.cfg.Business.LockMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer balanceLock.Unlock(ctx)

	balance, err := s.balanceRepo.GetOrCreate(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("获取余额账户失败: %w", err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 审核 CAS 在前：已被并发审核改过状态就整体回滚，资金不动
		if err := s.fundRepo.Review(ctx, tx, req.ID, model.FundRequestStatusApproved, operator, note); err != nil {
			return err
		}

		if requestType == model.FundRequestTypeDeposit {
			op := &BalanceOp{
				Field:    model.BalanceFieldAvailable,
				Mode:     model.BalanceModeAdd,
				Amount:   req.Amount,
				Type:     model.LedgerTypeDeposit,
				RefNo:    req.RequestNo,
				Operator: operator,
				Remark:   fmt.Sprintf("入金审核通过-%s", req.RequestNo),
			}
			if err := s.ledger.Apply(ctx, tx, balance, op); err != nil {
				return fmt.Errorf("入金入账失败: %w", err)
			}
		} else {
			if err := s.ledger.DeductAvailable(ctx, tx, balance, req.Amount, model.LedgerTypeWithdrawal,
				req.RequestNo, operator, fmt.Sprintf("出金审核通过-%s", req.RequestNo)); err != nil {
				return err
			}
		}

		return s.writeEvent(ctx, tx, "FUND_REQUEST_APPROVED", req, operator)
	})

	if err != nil {
		return nil, err
	}

	log.Printf("出入金审核通过: requestNo=%s, type=%s, amount=%.2f, operator=%s",
		req.RequestNo, requestType, req.Amount, operator)

	return s.fundRepo.GetByID(ctx, requestID)
}

func (s *FundService) reject(ctx context.Context, operator string, requestID int64, requestType, note string) (*model.FundRequest, error) {
	req, err := s.loadForReview(ctx, requestID, requestType)
	if err != nil {
		return nil, err
	}

	// 驳回不动资金，CAS 本身足以挡住并发审核，不需要余额锁
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.fundRepo.Review(ctx, tx, req.ID, model.FundRequestStatusRejected, operator, note); err != nil {
			return err
		}
		return s.writeEvent(ctx, tx, "FUND_REQUEST_REJECTED", req, operator)
	})

	if err != nil {
		return nil, err
	}

	log.Printf("出入金请求已驳回: requestNo=%s, type=%s, operator=%s", req.RequestNo, requestType, operator)

	return s.fundRepo.GetByID(ctx, requestID)
}

// loadForReview 读出请求并做前置校验
func (s *FundService) loadForReview(ctx context.Context, requestID int64, requestType string) (*model.FundRequest, error) {
	req, err := s.fundRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := checkReviewable(req, requestType); err != nil {
		return nil, err
	}
	return req, nil
}

// checkReviewable 审核前置校验：类型匹配、仍为待审核
// 已处理的请求是终态，重复审核直接拒绝
func checkReviewable(req *model.FundRequest, requestType string) error {
	if req.RequestType != requestType {
		return fmt.Errorf("%w: 请求类型不匹配，期望 %s 实际 %s", ErrInvalidArgument, requestType, req.RequestType)
	}
	if !model.CanReview(req.Status) {
		return fmt.Errorf("%w: 当前状态 %s", repository.ErrRequestNotPending, req.Status)
	}
	return nil
}

// writeEvent 审核结果随事务写入发件箱
func (s *FundService) writeEvent(ctx context.Context, tx *gorm.DB, event string, req *model.FundRequest, operator string) error {
	payload := map[string]interface{}{
		"event":        event,
		"request_no":   req.RequestNo,
		"request_type": req.RequestType,
		"user_id":      req.UserID,
		"amount":       req.Amount,
		"operator":     operator,
		"reviewed_at":  time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(payload)

	outboxMsg := &model.OutboxMessage{
		MessageKey: req.RequestNo,
		Topic:      s.cfg.Kafka.Topic.FundEvent,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
		return fmt.Errorf("写入事件失败: %w", err)
	}
	return nil
}

func (s *FundService) lockRetryInterval() time.Duration {
	return time.Duration(s.cfg.Business.LockRetryIntervalMs) * time.Millisecond
}
