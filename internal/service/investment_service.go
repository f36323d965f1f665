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
	"investsystem/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// InvestmentService 投资生命周期服务
// 管理端发起的创建/修改/取消/终止都在这里，派息类操作见 PayoutService
type InvestmentService struct {
	db             *gorm.DB
	redisClient    *redis.Client
	cfg            *config.Config
	investmentRepo *repository.InvestmentRepository
	balanceRepo    *repository.BalanceRepository
	outboxRepo     *repository.OutboxRepository
	ledger         *LedgerService
}

func NewInvestmentService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *InvestmentService {
	return &InvestmentService{
		db:             db,
		redisClient:    redisClient,
		cfg:            cfg,
		investmentRepo: repository.NewInvestmentRepository(db),
		balanceRepo:    repository.NewBalanceRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
		ledger:         NewLedgerService(db, redisClient, cfg),
	}
}

// CreateRequest 批量创建投资
// 同一套参数给多个用户各建一条独立记录，排期互不相干
type CreateRequest struct {
	UserIDs         []int64 `json:"user_ids" binding:"required,min=1"`
	Amount          float64 `json:"amount" binding:"required,gt=0"`
	ProfitPercent   float64 `json:"profit_percent" binding:"gte=0"`
	PayoutFrequency int     `json:"payout_frequency" binding:"required,gte=1"`
	DurationDays    int     `json:"duration_days" binding:"required,gte=1"`
}

// CreateFailure 批量创建中单个用户的失败
type CreateFailure struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

// CreateResult 批量创建结果
// 每个用户独立成败：一个用户余额不足只拦住他自己，不连坐其他用户
type CreateResult struct {
	Created  []*model.Investment `json:"created"`
	Failures []CreateFailure     `json:"failures"`
}

func (req *CreateRequest) validate() error {
	if len(req.UserIDs) == 0 {
		return fmt.Errorf("%w: 用户列表不能为空", ErrInvalidArgument)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: 本金必须大于0", ErrInvalidArgument)
	}
	if req.ProfitPercent < 0 {
		return fmt.Errorf("%w: 收益百分比不能为负数", ErrInvalidArgument)
	}
	if req.PayoutFrequency < 1 {
		return fmt.Errorf("%w: 每天派息次数至少为1", ErrInvalidArgument)
	}
	if req.DurationDays < 1 {
		return fmt.Errorf("%w: 投资天数至少为1", ErrInvalidArgument)
	}
	return nil
}

// Create 批量创建投资
// 每个用户一个事务：严格扣可用余额（不足即硬失败）、加在投本金、落投资记录、写事件
func (s *InvestmentService) Create(ctx context.Context, operator string, req *CreateRequest) (*CreateResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	result := &CreateResult{}
	for _, userID := range req.UserIDs {
		inv, err := s.createForUser(ctx, operator, userID, req)
		if err != nil {
			result.Failures = append(result.Failures, CreateFailure{
				UserID: userID,
				Reason: err.Error(),
			})
			continue
		}
		result.Created = append(result.Created, inv)
	}

	log.Printf("批量创建投资: operator=%s, amount=%.2f, created=%d, failed=%d",
		operator, req.Amount, len(result.Created), len(result.Failures))

	return result, nil
}

func (s *InvestmentService) createForUser(ctx context.Context, operator string, userID int64, req *CreateRequest) (*model.Investment, error) {
	balanceLock := lock.NewBalanceLock(s.redisClient, userID, operator)
	err := balanceLock.Lock(ctx, s.lockRetryInterval(), s.cfg.Business.LockMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer balanceLock.Unlock(ctx)

	balance, err := s.balanceRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取余额账户失败: %w", err)
	}
	if err := checkAvailableCovers(balance, req.Amount); err != nil {
		return nil, err
	}

	now := time.Now()
	inv := &model.Investment{
		InvestmentNo:    idgen.GenerateInvestmentNo(),
		UserID:          userID,
		Amount:          req.Amount,
		ProfitPercent:   req.ProfitPercent,
		PayoutFrequency: req.PayoutFrequency,
		DurationDays:    req.DurationDays,
		Status:          model.InvestmentStatusActive,
		StartedAt:       now,
		EndsAt:          now.AddDate(0, 0, req.DurationDays),
		CreatedBy:       operator,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.DeductAvailable(ctx, tx, balance, req.Amount, model.LedgerTypeInvest, inv.InvestmentNo, operator,
			fmt.Sprintf("创建投资-%s", inv.InvestmentNo)); err != nil {
			return err
		}

		investOp := &BalanceOp{
			Field:    model.BalanceFieldInvested,
			Mode:     model.BalanceModeAdd,
			Amount:   req.Amount,
			Type:     model.LedgerTypeInvest,
			RefNo:    inv.InvestmentNo,
			Operator: operator,
			Remark:   fmt.Sprintf("创建投资-%s", inv.InvestmentNo),
		}
		if err := s.ledger.Apply(ctx, tx, balance, investOp); err != nil {
			return err
		}

		if err := s.investmentRepo.Create(ctx, tx, inv); err != nil {
			return fmt.Errorf("创建投资记录失败: %w", err)
		}

		return s.writeEvent(ctx, tx, "INVESTMENT_CREATED", inv, operator, map[string]interface{}{
			"amount":           inv.Amount,
			"profit_percent":   inv.ProfitPercent,
			"payout_frequency": inv.PayoutFrequency,
			"duration_days":    inv.DurationDays,
		})
	})

	if err != nil {
		return nil, err
	}

	return inv, nil
}

// checkAvailableCovers 创建投资的余额前置校验
// 可用余额盖不住本金就硬失败，不动任何字段；事务内的严格扣减是第二道防线
func checkAvailableCovers(balance *model.Balance, amount float64) error {
	if balance.Available < amount {
		return repository.ErrInsufficientFunds
	}
	return nil
}

// EditRequest 修改进行中投资的条款，nil 字段表示不改
type EditRequest struct {
	ProfitPercent   *float64 `json:"profit_percent" binding:"omitempty,gte=0"`
	PayoutFrequency *int     `json:"payout_frequency" binding:"omitempty,gte=1"`
	DurationDays    *int     `json:"duration_days" binding:"omitempty,gte=1"`
}

// Edit 修改投资条款，仅限 ACTIVE
// 新条款只影响后续派息计算，已派的次数和网格基准不回写，不追溯重算
func (s *InvestmentService) Edit(ctx context.Context, operator string, investmentID int64, req *EditRequest) (*model.Investment, error) {
	invLock := lock.NewInvestmentLock(s.redisClient, investmentID, operator)
	err := invLock.Lock(ctx, s.lockRetryInterval(), s.cfg.Business.LockMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer invLock.Unlock(ctx)

	inv, err := s.investmentRepo.GetByID(ctx, investmentID)
	if err != nil {
		return nil, err
	}
	if inv.Status != model.InvestmentStatusActive {
		return nil, fmt.Errorf("%w: 当前状态 %s", repository.ErrInvalidStateTransition, inv.Status)
	}

	profitPercent := inv.ProfitPercent
	if req.ProfitPercent != nil {
		if *req.ProfitPercent < 0 {
			return nil, fmt.Errorf("%w: 收益百分比不能为负数", ErrInvalidArgument)
		}
		profitPercent = *req.ProfitPercent
	}
	payoutFrequency := inv.PayoutFrequency
	if req.PayoutFrequency != nil {
		if *req.PayoutFrequency < 1 {
			return nil, fmt.Errorf("%w: 每天派息次数至少为1", ErrInvalidArgument)
		}
		payoutFrequency = *req.PayoutFrequency
	}
	durationDays := inv.DurationDays
	if req.DurationDays != nil {
		if *req.DurationDays < 1 {
			return nil, fmt.Errorf("%w: 投资天数至少为1", ErrInvalidArgument)
		}
		durationDays = *req.DurationDays
	}

	// 缩短天数不能缩到已派次数之下，否则违反 payoutsCompleted ≤ 总次数
	if payoutFrequency*durationDays < inv.PayoutsCompleted {
		return nil, fmt.Errorf("%w: 新的派息总次数 %d 小于已派次数 %d",
			ErrInvalidArgument, payoutFrequency*durationDays, inv.PayoutsCompleted)
	}

	endsAt := inv.StartedAt.AddDate(0, 0, durationDays)
	err = s.investmentRepo.UpdateTerms(ctx, nil, investmentID, profitPercent, payoutFrequency, durationDays, endsAt)
	if err != nil {
		return nil, err
	}

	log.Printf("投资条款已修改: investmentNo=%s, percent=%.4f, freq=%d, days=%d, operator=%s",
		inv.InvestmentNo, profitPercent, payoutFrequency, durationDays, operator)

	return s.investmentRepo.GetByID(ctx, investmentID)
}

// Cancel 取消投资：本金退回可用余额，扣减在投本金，状态置 CANCELLED
// 已派发的收益不追回
func (s *InvestmentService) Cancel(ctx context.Context, operator string, investmentID int64) (*model.Investment, error) {
	return s.terminate(ctx, operator, investmentID, model.InvestmentStatusCancelled, "INVESTMENT_CANCELLED")
}

// Stop 管理员强制终止：余额效果与取消一致，状态置 STOPPED
// 单独一个终态标签，报表上区分"强制终止"与"取消"
func (s *InvestmentService) Stop(ctx context.Context, operator string, investmentID int64) (*model.Investment, error) {
	return s.terminate(ctx, operator, investmentID, model.InvestmentStatusStopped, "INVESTMENT_STOPPED")
}

func (s *InvestmentService) terminate(ctx context.Context, operator string, investmentID int64, toStatus, event string) (*model.Investment, error) {
	invLock := lock.NewInvestmentLock(s.redisClient, investmentID, operator)
	err := invLock.Lock(ctx, s.lockRetryInterval(), s.cfg.Business.LockMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer invLock.Unlock(ctx)

	inv, err := s.investmentRepo.GetByID(ctx, investmentID)
	if err != nil {
		return nil, err
	}
	if inv.Status != model.InvestmentStatusActive {
		return nil, fmt.Errorf("%w: 当前状态 %s", repository.ErrInvalidStateTransition, inv.Status)
	}

	balance, err := s.balanceRepo.GetOrCreate(ctx, inv.UserID)
	if err != nil {
		return nil, fmt.Errorf("获取余额账户失败: %w", err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 状态 CAS 在前：已被并发操作改过状态就整体回滚，资金不动
		if err := s.investmentRepo.UpdateStatus(ctx, tx, investmentID, model.InvestmentStatusActive, toStatus); err != nil {
			return err
		}

		returnOp := &BalanceOp{
			Field:    model.BalanceFieldAvailable,
			Mode:     model.BalanceModeAdd,
			Amount:   inv.Amount,
			Type:     model.LedgerTypePrincipal,
			RefNo:    inv.InvestmentNo,
			Operator: operator,
			Remark:   fmt.Sprintf("退回本金-%s", inv.InvestmentNo),
		}
		if err := s.ledger.Apply(ctx, tx, balance, returnOp); err != nil {
			return fmt.Errorf("退回本金失败: %w", err)
		}

		reduceOp := &BalanceOp{
			Field:    model.BalanceFieldInvested,
			Mode:     model.BalanceModeReduce,
			Amount:   inv.Amount,
			Type:     model.LedgerTypePrincipal,
			RefNo:    inv.InvestmentNo,
			Operator: operator,
			Remark:   fmt.Sprintf("扣减在投本金-%s", inv.InvestmentNo),
		}
		if err := s.ledger.Apply(ctx, tx, balance, reduceOp); err != nil {
			return fmt.Errorf("扣减在投本金失败: %w", err)
		}

		return s.writeEvent(ctx, tx, event, inv, operator, map[string]interface{}{
			"principal_returned": inv.Amount,
		})
	})

	if err != nil {
		return nil, err
	}

	log.Printf("投资已结束: investmentNo=%s, status=%s, principal=%.2f, operator=%s",
		inv.InvestmentNo, toStatus, inv.Amount, operator)

	return s.investmentRepo.GetByID(ctx, investmentID)
}

// GetByID 查询投资详情
func (s *InvestmentService) GetByID(ctx context.Context, investmentID int64) (*model.Investment, error) {
	return s.investmentRepo.GetByID(ctx, investmentID)
}

// GetByInvestmentNo 按单号查询投资详情
func (s *InvestmentService) GetByInvestmentNo(ctx context.Context, investmentNo string) (*model.Investment, error) {
	return s.investmentRepo.GetByInvestmentNo(ctx, investmentNo)
}

// List 按状态分页查询，status 为空表示全部
func (s *InvestmentService) List(ctx context.Context, status string, page, pageSize int) ([]*model.Investment, int64, error) {
	if status != "" && !model.IsValidInvestmentStatus(status) {
		return nil, 0, fmt.Errorf("%w: 未知状态 %s", ErrInvalidArgument, status)
	}
	return s.investmentRepo.List(ctx, status, page, pageSize)
}

// ListByUserID 查询某用户的投资
func (s *InvestmentService) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Investment, int64, error) {
	return s.investmentRepo.ListByUserID(ctx, userID, page, pageSize)
}

// Stats 管理端看板聚合数据（只读）
type Stats struct {
	InvestmentCounts map[string]int64          `json:"investment_counts"`
	ActivePrincipal  float64                   `json:"active_principal"`
	BalanceTotals    *repository.BalanceTotals `json:"balance_totals"`
}

func (s *InvestmentService) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.investmentRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("统计投资数量失败: %w", err)
	}

	principal, err := s.investmentRepo.SumActivePrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("统计在投本金失败: %w", err)
	}

	totals, err := s.balanceRepo.SumTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("统计余额汇总失败: %w", err)
	}

	return &Stats{
		InvestmentCounts: counts,
		ActivePrincipal:  principal,
		BalanceTotals:    totals,
	}, nil
}

// writeEvent 生命周期事件随事务写入发件箱
func (s *InvestmentService) writeEvent(ctx context.Context, tx *gorm.DB, event string, inv *model.Investment, operator string, extra map[string]interface{}) error {
	payload := map[string]interface{}{
		"event":         event,
		"investment_no": inv.InvestmentNo,
		"user_id":       inv.UserID,
		"operator":      operator,
		"occurred_at":   time.Now().Format(time.RFC3339),
	}
	for k, v := range extra {
		payload[k] = v
	}
	payloadBytes, _ := json.Marshal(payload)

	outboxMsg := &model.OutboxMessage{
		MessageKey: inv.InvestmentNo,
		Topic:      s.cfg.Kafka.Topic.InvestmentEvent,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
		return fmt.Errorf("写入事件失败: %w", err)
	}
	return nil
}

func (s *InvestmentService) lockRetryInterval() time.Duration {
	return time.Duration(s.cfg.Business.LockRetryIntervalMs) * time.Millisecond
}
