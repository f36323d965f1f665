package service

import (
	"context"
	"errors"
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

var (
	ErrInvalidArgument = errors.New("参数不合法")
)

// LedgerService 余额账本服务
// 四个余额字段的唯一修改入口，其他组件一律不直接改余额表
// 每次变动都在同一事务里追加流水，余额和流水要么都落库要么都回滚
type LedgerService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	balanceRepo *repository.BalanceRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewLedgerService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		balanceRepo: repository.NewBalanceRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}
}

// BalanceOp 一次余额变动的封闭描述
// 字段和模式都是枚举，边界层拒绝未知值
type BalanceOp struct {
	Field    string  // 余额字段
	Mode     string  // ADD / REDUCE / SET
	Amount   float64 // 操作金额
	Type     string  // 流水类型
	RefNo    string  // 关联投资单号，可为空
	Operator string  // 操作管理员，调度器为 system
	Remark   string
}

func (op *BalanceOp) validate() error {
	if !model.IsValidBalanceField(op.Field) {
		return fmt.Errorf("%w: 未知余额字段 %s", ErrInvalidArgument, op.Field)
	}
	if !model.IsValidBalanceMode(op.Mode) {
		return fmt.Errorf("%w: 未知操作模式 %s", ErrInvalidArgument, op.Mode)
	}
	if op.Amount < 0 {
		return fmt.Errorf("%w: 金额不能为负数", ErrInvalidArgument)
	}
	return nil
}

// Apply 在给定事务内执行一次余额变动并追加流水
//
// balance 是调用方在事务外读出的快照，变动成功后就地更新字段值和版本号，
// 同一事务里连续多次变动（比如扣可用+加在投）可以复用同一个快照
func (s *LedgerService) Apply(ctx context.Context, tx *gorm.DB, balance *model.Balance, op *BalanceOp) error {
	if err := op.validate(); err != nil {
		return err
	}

	before := balance.FieldValue(op.Field)
	after := model.ApplyBalanceMode(before, op.Amount, op.Mode)

	if err := s.balanceRepo.ApplyDelta(ctx, tx, balance.UserID, op.Field, op.Amount, op.Mode, balance.Version); err != nil {
		return err
	}

	entry := &model.LedgerEntry{
		EntryNo:     idgen.GenerateEntryNo(),
		UserID:      balance.UserID,
		Field:       op.Field,
		Mode:        op.Mode,
		Amount:      op.Amount,
		ValueBefore: before,
		ValueAfter:  after,
		Type:        op.Type,
		RefNo:       op.RefNo,
		Operator:    op.Operator,
		Remark:      op.Remark,
	}
	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("记录流水失败: %w", err)
	}

	s.setField(balance, op.Field, after)
	balance.Version++
	return nil
}

// DeductAvailable 在给定事务内严格扣减可用余额并追加流水
// 余额不足返回 ErrInsufficientFunds，不截断
// 创建投资扣本金和出金审核通过共用，entryType 区分流水类型
func (s *LedgerService) DeductAvailable(ctx context.Context, tx *gorm.DB, balance *model.Balance, amount float64, entryType, refNo, operator, remark string) error {
	if err := s.balanceRepo.DeductAvailable(ctx, tx, balance.UserID, amount, balance.Version); err != nil {
		return err
	}

	entry := &model.LedgerEntry{
		EntryNo:     idgen.GenerateEntryNo(),
		UserID:      balance.UserID,
		Field:       model.BalanceFieldAvailable,
		Mode:        model.BalanceModeReduce,
		Amount:      amount,
		ValueBefore: balance.Available,
		ValueAfter:  balance.Available - amount,
		Type:        entryType,
		RefNo:       refNo,
		Operator:    operator,
		Remark:      remark,
	}
	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("记录流水失败: %w", err)
	}

	balance.Available -= amount
	balance.Version++
	return nil
}

// AdminAdjust 管理员手工调整余额
//
// 用户页的"直接设置可用余额"和投资页的"增减余额"共用这一个入口，
// 差别只在 mode。SET 也会留流水（记录前后值），可审计性不受影响
func (s *LedgerService) AdminAdjust(ctx context.Context, operator string, userID int64, field, mode string, amount float64, remark string) (*model.Balance, error) {
	op := &BalanceOp{
		Field:    field,
		Mode:     mode,
		Amount:   amount,
		Type:     model.LedgerTypeAdminAdjust,
		Operator: operator,
		Remark:   remark,
	}
	if err := op.validate(); err != nil {
		return nil, err
	}

	// 按用户维度加锁，同一用户的手工调整互斥
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

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.Apply(ctx, tx, balance, op)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("余额调整成功: userID=%d, field=%s, mode=%s, amount=%.2f, operator=%s",
		userID, field, mode, amount, operator)

	return balance, nil
}

// GetBalance 查询用户余额，不存在时返回零值账户
func (s *LedgerService) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	return s.balanceRepo.GetOrCreate(ctx, userID)
}

// ListEntries 查询用户流水（分页）
func (s *LedgerService) ListEntries(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	return s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
}

func (s *LedgerService) lockRetryInterval() time.Duration {
	return time.Duration(s.cfg.Business.LockRetryIntervalMs) * time.Millisecond
}

func (s *LedgerService) setField(balance *model.Balance, field string, value float64) {
	switch field {
	case model.BalanceFieldAvailable:
		balance.Available = value
	case model.BalanceFieldInvested:
		balance.Invested = value
	case model.BalanceFieldTotalProfit:
		balance.TotalProfit = value
	case model.BalanceFieldBonus:
		balance.Bonus = value
	}
}
