package job

import (
	"context"
	"log"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/service"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// PayoutScanJob 派息定时任务
// 周期性驱动调度器扫描到期投资，算法本体在 PayoutService
type PayoutScanJob struct {
	payoutService *service.PayoutService
	stopCh        chan struct{}
	interval      time.Duration
}

func NewPayoutScanJob(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *PayoutScanJob {
	interval := time.Duration(cfg.Business.PayoutScanIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &PayoutScanJob{
		payoutService: service.NewPayoutService(db, redisClient, cfg),
		stopCh:        make(chan struct{}),
		interval:      interval,
	}
}

func (j *PayoutScanJob) Start(ctx context.Context) {
	log.Println("[PayoutScanJob] 派息扫描任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[PayoutScanJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[PayoutScanJob] 任务停止")
			return
		case <-ticker.C:
			j.runPass(ctx)
		}
	}
}

func (j *PayoutScanJob) Stop() {
	close(j.stopCh)
}

func (j *PayoutScanJob) runPass(ctx context.Context) {
	processed, settled, err := j.payoutService.RunPass(ctx)
	if err != nil {
		log.Printf("[PayoutScanJob] 扫描失败: %v", err)
		return
	}

	if processed > 0 {
		log.Printf("[PayoutScanJob] 本轮处理 %d 笔投资，派息 %d 笔", processed, settled)
	}
}
