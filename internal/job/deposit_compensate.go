package job

import (
	"context"
	"log"
	"time"

	"cricketledger/internal/config"
	"cricketledger/internal/model"
	"cricketledger/internal/service"

	"gorm.io/gorm"
)

// DepositCompensateJob 充值补偿任务
//
// 要补的洞：通知达到确认门槛、认领键写入成功，但进程在发件箱
// 落库前崩溃 —— 此时网关不再重推（它看到的是 200），认领键要等 TTL
// 过期，这笔充值就悬在 PENDING。
//
// 补偿方式：周期扫描"确认数达标但长时间未落账"的充值流水，
// 走一遍与正常通知相同的 Ingest 路径重新入队；
// 幂等键 + processed_at 两层防线保证重复补偿是安全的。
type DepositCompensateJob struct {
	db             *gorm.DB
	depositService *service.DepositService
	cfg            *config.Config
	stopCh         chan struct{}
	interval       time.Duration
	batchSize      int
	minAge         time.Duration // 只补偿超过该年龄的流水，避免和正常流程抢
}

func NewDepositCompensateJob(db *gorm.DB, depositService *service.DepositService, cfg *config.Config) *DepositCompensateJob {
	return &DepositCompensateJob{
		db:             db,
		depositService: depositService,
		cfg:            cfg,
		stopCh:         make(chan struct{}),
		interval:       1 * time.Minute,
		batchSize:      50,
		minAge:         time.Duration(cfg.Deposit.ClaimTTLSeconds) * time.Second,
	}
}

func (j *DepositCompensateJob) Start(ctx context.Context) {
	log.Println("[DepositCompensateJob] 充值补偿任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[DepositCompensateJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[DepositCompensateJob] 任务停止")
			return
		case <-ticker.C:
			j.compensate(ctx)
		}
	}
}

func (j *DepositCompensateJob) Stop() {
	close(j.stopCh)
}

func (j *DepositCompensateJob) compensate(ctx context.Context) {
	stuck, err := j.depositService.ListStuckDeposits(ctx, time.Now().Add(-j.minAge), j.batchSize)
	if err != nil {
		log.Printf("[DepositCompensateJob] 查询滞留流水失败: %v", err)
		return
	}

	if len(stuck) == 0 {
		return
	}

	log.Printf("[DepositCompensateJob] 发现 %d 笔滞留充值", len(stuck))

	for _, trans := range stuck {
		j.reEnqueue(ctx, trans)
	}
}

func (j *DepositCompensateJob) reEnqueue(ctx context.Context, trans *model.Transaction) {
	result, err := j.depositService.Ingest(ctx, &service.DepositNotification{
		TxHash:        derefTxHash(trans),
		Confirmations: trans.Metadata.Confirmations,
		Chain:         trans.Metadata.Chain,
		ToAddress:     trans.Metadata.ToAddress,
		Amount:        trans.Amount,
		Currency:      trans.Currency,
		UserID:        trans.UserID,
		BlockHeight:   trans.Metadata.BlockHeight,
	})
	if err != nil {
		log.Printf("[DepositCompensateJob] 补偿入队失败: transactionID=%d, err=%v", trans.ID, err)
		return
	}
	if result.Enqueued {
		log.Printf("[DepositCompensateJob] 补偿入队成功: transactionID=%d", trans.ID)
	}
}

func derefTxHash(trans *model.Transaction) string {
	if trans.TxHash == nil {
		return ""
	}
	return *trans.TxHash
}
