package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/infrastructure/lock"
	"investsystem/internal/model"
	"investsystem/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrScheduleExhausted = errors.New("派息次数已用完")
)

// PayoutService 派息调度服务
//
// 核心算法（定时 tick、trigger-payouts、catch-up 共用一条路径）：
// 1. 扫描到期的进行中投资
// 2. 逐笔计算欠发次数 n = floor((now - 基准) / 间隔)，封顶剩余次数
// 3. 一次事务内：进度 CAS 推进 n 次、收益一笔入账 n × 单次金额、写流水和事件
//    入账只有一次 Ledger 写，调度器停多久都不会放大写入量
// 4. 派满后置 COMPLETED
// 某一笔投资失败只影响它自己，本轮其余投资照常处理
type PayoutService struct {
	db             *gorm.DB
	redisClient    *redis.Client
	cfg            *config.Config
	investmentRepo *repository.InvestmentRepository
	balanceRepo    *repository.BalanceRepository
	outboxRepo     *repository.OutboxRepository
	ledger         *LedgerService
}

func NewPayoutService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *PayoutService {
	return &PayoutService{
		db:             db,
		redisClient:    redisClient,
		cfg:            cfg,
		investmentRepo: repository.NewInvestmentRepository(db),
		balanceRepo:    repository.NewBalanceRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
		ledger:         NewLedgerService(db, redisClient, cfg),
	}
}

// SettleResult 一次结算的结果
type SettleResult struct {
	InvestmentNo     string  `json:"investment_no"`
	PayoutsApplied   int     `json:"payouts_applied"`   // 本次派息次数
	ProfitCredited   float64 `json:"profit_credited"`   // 本次入账收益
	PayoutsCompleted int     `json:"payouts_completed"` // 累计派息次数
	Status           string  `json:"status"`
}

// RunPass 执行一轮扫描派息
// 定时任务和 trigger-payouts 接口都走这里
func (s *PayoutService) RunPass(ctx context.Context) (processed, settled int, err error) {
	now := time.Now()

	investments, err := s.investmentRepo.GetDueInvestments(ctx, now, s.cfg.Business.PayoutScanBatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("扫描到期投资失败: %w", err)
	}

	for _, inv := range investments {
		processed++

		// 非阻塞抢锁：锁被管理端操作占着就跳过，下一轮再处理
		invLock := lock.NewInvestmentLock(s.redisClient, inv.ID, "system")
		acquired, lockErr := invLock.TryLock(ctx)
		if lockErr != nil {
			log.Printf("[PayoutScheduler] 获取锁失败: investmentNo=%s, err=%v", inv.InvestmentNo, lockErr)
			continue
		}
		if !acquired {
			continue
		}

		result, settleErr := s.settleHolding(ctx, inv.ID, "system")
		invLock.Unlock(ctx)

		if settleErr != nil {
			// 选表之后、拿锁之前被取消/终止的记录不算错误，跳过即可
			if errors.Is(settleErr, repository.ErrInvalidStateTransition) {
				continue
			}
			// 并发冲突是可重试错误，留给下一轮；其他错误同样只影响这一笔
			log.Printf("[PayoutScheduler] 结算失败: investmentNo=%s, err=%v", inv.InvestmentNo, settleErr)
			continue
		}
		if result.PayoutsApplied > 0 {
			settled++
			log.Printf("[PayoutScheduler] 派息成功: investmentNo=%s, n=%d, profit=%.2f, completed=%d, status=%s",
				result.InvestmentNo, result.PayoutsApplied, result.ProfitCredited,
				result.PayoutsCompleted, result.Status)
		}
	}

	return processed, settled, nil
}

// CatchUp 对单笔投资补发全部欠账派息
// 调度器停机恢复后管理端手动触发，算法与定时扫描一致
func (s *PayoutService) CatchUp(ctx context.Context, operator string, investmentID int64) (*SettleResult, error) {
	invLock := lock.NewInvestmentLock(s.redisClient, investmentID, operator)
	err := invLock.Lock(ctx, s.lockRetryInterval(), s.cfg.Business.LockMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer invLock.Unlock(ctx)

	return s.settleHolding(ctx, investmentID, operator)
}

// ForcePay 无视排期立即派一次息
// 消耗下一个网格位（基准时间同样前移一个间隔），派满后拒绝
func (s *PayoutService) ForcePay(ctx context.Context, operator string, investmentID int64) (*SettleResult, error) {
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
	if err := checkForcePayable(inv); err != nil {
		return nil, err
	}

	return s.applyPayouts(ctx, inv, 1, operator)
}

// checkForcePayable 强制派息的前置校验
// 只有进行中且还有剩余次数的投资能被强制派息，派满的直接拒绝
func checkForcePayable(inv *model.Investment) error {
	if inv.Status != model.InvestmentStatusActive {
		return fmt.Errorf("%w: 当前状态 %s", repository.ErrInvalidStateTransition, inv.Status)
	}
	if inv.RemainingPayouts() == 0 {
		return ErrScheduleExhausted
	}
	return nil
}

// settleHolding 持锁状态下结算一笔投资
// 锁内重读记录再判状态，选表时还是 ACTIVE、进事务前被取消的记录在这里被拦下
func (s *PayoutService) settleHolding(ctx context.Context, investmentID int64, operator string) (*SettleResult, error) {
	inv, err := s.investmentRepo.GetByID(ctx, investmentID)
	if err != nil {
		return nil, err
	}
	if inv.Status != model.InvestmentStatusActive {
		return nil, fmt.Errorf("%w: 当前状态 %s", repository.ErrInvalidStateTransition, inv.Status)
	}

	n := inv.ElapsedIntervals(time.Now())
	if n == 0 {
		// 没有到期派息，幂等空转
		return &SettleResult{
			InvestmentNo:     inv.InvestmentNo,
			PayoutsApplied:   0,
			ProfitCredited:   0,
			PayoutsCompleted: inv.PayoutsCompleted,
			Status:           inv.Status,
		}, nil
	}

	return s.applyPayouts(ctx, inv, n, operator)
}

// applyPayouts 一次事务内完成 n 次派息
//
// 【关键点】进度推进和收益入账在同一事务里，任一半失败整体回滚，
// 绝不允许"钱进了账但进度没动"或反过来的半提交状态。
// AdvanceSchedule 的 CAS 条件（状态 + 当前进度）是锁之外的第二道防线
func (s *PayoutService) applyPayouts(ctx context.Context, inv *model.Investment, n int, operator string) (*SettleResult, error) {
	perPayout := inv.PayoutAmount()
	profit := math.Round(float64(n)*perPayout*100) / 100
	newLastPayoutAt := inv.NextPayoutAfter(n)
	completed := inv.PayoutsCompleted+n >= inv.TotalPayouts()

	balance, err := s.balanceRepo.GetOrCreate(ctx, inv.UserID)
	if err != nil {
		return nil, fmt.Errorf("获取余额账户失败: %w", err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.investmentRepo.AdvanceSchedule(ctx, tx, inv.ID, inv.PayoutsCompleted, n, newLastPayoutAt, completed); err != nil {
			return err
		}

		op := &BalanceOp{
			Field:    model.BalanceFieldTotalProfit,
			Mode:     model.BalanceModeAdd,
			Amount:   profit,
			Type:     model.LedgerTypePayout,
			RefNo:    inv.InvestmentNo,
			Operator: operator,
			Remark:   fmt.Sprintf("派息-%d次-单次%.2f", n, perPayout),
		}
		if err := s.ledger.Apply(ctx, tx, balance, op); err != nil {
			return fmt.Errorf("收益入账失败: %w", err)
		}

		status := model.InvestmentStatusActive
		if completed {
			status = model.InvestmentStatusCompleted
		}
		msgPayload := map[string]interface{}{
			"event":             "PAYOUT_SETTLED",
			"investment_no":     inv.InvestmentNo,
			"user_id":           inv.UserID,
			"payouts_applied":   n,
			"profit_credited":   profit,
			"payouts_completed": inv.PayoutsCompleted + n,
			"status":            status,
			"operator":          operator,
			"settled_at":        time.Now().Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: inv.InvestmentNo,
			Topic:      s.cfg.Kafka.Topic.PayoutEvent,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入事件失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	status := model.InvestmentStatusActive
	if completed {
		status = model.InvestmentStatusCompleted
	}

	return &SettleResult{
		InvestmentNo:     inv.InvestmentNo,
		PayoutsApplied:   n,
		ProfitCredited:   profit,
		PayoutsCompleted: inv.PayoutsCompleted + n,
		Status:           status,
	}, nil
}

func (s *PayoutService) lockRetryInterval() time.Duration {
	return time.Duration(s.cfg.Business.LockRetryIntervalMs) * time.Millisecond
}
