package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"cricketledger/internal/config"
	"cricketledger/internal/infrastructure/idem"
	"cricketledger/internal/model"
	"cricketledger/internal/repository"
	"cricketledger/pkg/idgen"
	"cricketledger/pkg/retry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidNotification = errors.New("充值通知参数不合法")
)

// DepositNotification 外部链上支付网关推送的确认通知
type DepositNotification struct {
	TxHash        string
	Confirmations int
	Chain         string
	ToAddress     string
	Amount        decimal.Decimal
	Currency      string
	UserID        int64 // 0 表示网关暂未匹配到用户
	BlockHeight   uint64
}

// IngestResult 通知接收结果
type IngestResult struct {
	OK       bool   `json:"ok"`
	Enqueued bool   `json:"enqueued"`
	Message  string `json:"message,omitempty"`
}

// creditTask 入账任务载荷（写进发件箱，经 Kafka 到 worker）
type creditTask struct {
	TransactionID int64 `json:"transaction_id"`
}

type DepositService struct {
	db          *gorm.DB
	cfg         *config.Config
	idemStore   *idem.Store
	retryPolicy retry.Policy
	txnRepo     *repository.TransactionRepository
	walletRepo  *repository.WalletRepository
	outboxRepo  *repository.OutboxRepository
}

func NewDepositService(db *gorm.DB, idemStore *idem.Store, cfg *config.Config) *DepositService {
	policy := retry.DefaultPolicy()
	if cfg.Business.MaxRetryCount > 0 {
		policy.MaxAttempts = cfg.Business.MaxRetryCount
	}
	return &DepositService{
		db:          db,
		cfg:         cfg,
		idemStore:   idemStore,
		retryPolicy: policy,
		txnRepo:     repository.NewTransactionRepository(db),
		walletRepo:  repository.NewWalletRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// ============================================================================
// 通知接收
// ============================================================================

// Ingest 接收一条充值确认通知
//
// 同一个 tx_hash 的通知可能到达任意多次（网关重试、确认数增长推送），
// 这里必须做到：流水最多建一条，入账任务最多入队一次。
//
// 流程：
// 1. 按 tx_hash 找流水，没有且带用户ID则创建（processed_at 为空）
// 2. 确认数/区块高度以最新通知为准覆盖更新（覆盖是安全的）
// 3. 确认数未达标 -> 保持 PENDING 返回，不设过期，等后续通知
// 4. 达标 -> 抢幂等键，抢不到说明已入队；抢到则写发件箱入队
func (s *DepositService) Ingest(ctx context.Context, n *DepositNotification) (*IngestResult, error) {
	if n.TxHash == "" || !n.Amount.IsPositive() || n.Currency == "" {
		return nil, ErrInvalidNotification
	}

	trans, err := s.txnRepo.GetByTxHash(ctx, n.TxHash)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}

	if trans == nil {
		if n.UserID == 0 {
			// 未匹配到用户的通知暂不建流水，等网关补全后重推
			return &IngestResult{OK: true, Enqueued: false, Message: "通知未关联用户，暂不处理"}, nil
		}

		// 确保钱包存在（充值可能发生在用户任何动作之前）
		if _, err := s.walletRepo.GetOrCreate(ctx, n.UserID); err != nil {
			return nil, fmt.Errorf("初始化钱包失败: %w", err)
		}

		txHash := n.TxHash
		trans = &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        n.UserID,
			Type:          model.TxnTypeDeposit,
			Amount:        n.Amount,
			Currency:      n.Currency,
			TxHash:        &txHash,
			Metadata: model.TxnMetadata{
				Chain:         n.Chain,
				ToAddress:     n.ToAddress,
				Confirmations: n.Confirmations,
				BlockHeight:   n.BlockHeight,
			},
			Status: model.TxnStatusPending,
		}
		if err := s.txnRepo.Create(ctx, nil, trans); err != nil {
			// tx_hash 唯一索引兜住并发创建，重新取回已存在的那条
			existing, getErr := s.txnRepo.GetByTxHash(ctx, n.TxHash)
			if getErr != nil || existing == nil {
				return nil, fmt.Errorf("创建充值流水失败: %w", err)
			}
			trans = existing
		}
	} else {
		meta := trans.Metadata
		meta.Confirmations = n.Confirmations
		meta.BlockHeight = n.BlockHeight
		if err := s.txnRepo.UpdateMetadata(ctx, trans.ID, meta); err != nil {
			return nil, fmt.Errorf("更新流水元数据失败: %w", err)
		}
	}

	if trans.ProcessedAt != nil {
		return &IngestResult{OK: true, Enqueued: false, Message: "该笔充值已入账"}, nil
	}

	if n.Confirmations < s.cfg.Deposit.ConfirmationThreshold {
		return &IngestResult{
			OK:       true,
			Enqueued: false,
			Message:  fmt.Sprintf("确认数不足: %d/%d", n.Confirmations, s.cfg.Deposit.ConfirmationThreshold),
		}, nil
	}

	// 第一层幂等：tx_hash 维度的认领键，TTL 窗口内只有一次通知能入队
	owner := uuid.NewString()
	ttl := time.Duration(s.cfg.Deposit.ClaimTTLSeconds) * time.Second
	claimed, err := s.idemStore.Claim(ctx, fmt.Sprintf("credit:%s", n.TxHash), owner, ttl)
	if err != nil {
		return nil, fmt.Errorf("认领幂等键失败: %w", err)
	}
	if !claimed {
		return &IngestResult{OK: true, Enqueued: false, Message: "入账任务已在队列中"}, nil
	}

	payload, _ := json.Marshal(creditTask{TransactionID: trans.ID})
	msg := &model.OutboxMessage{
		MessageKey: n.TxHash,
		Topic:      s.cfg.Kafka.Topic.DepositCredit,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, nil, msg); err != nil {
		// 入队失败要撤销认领，否则这笔充值会卡到 TTL 过期
		if releaseErr := s.idemStore.Release(ctx, fmt.Sprintf("credit:%s", n.TxHash), owner); releaseErr != nil {
			log.Printf("[DepositService] 撤销认领失败: txHash=%s, err=%v", n.TxHash, releaseErr)
		}
		return nil, fmt.Errorf("入账任务入队失败: %w", err)
	}

	log.Printf("[DepositService] 入账任务已入队: txHash=%s, transactionID=%d, amount=%s",
		n.TxHash, trans.ID, trans.Amount)
	return &IngestResult{OK: true, Enqueued: true, Message: "入账任务已入队"}, nil
}

// ListStuckDeposits 查询确认数已达标但长时间未落账的充值流水
// 补偿任务用它找回"认领成功但入队前崩溃"的漏单
func (s *DepositService) ListStuckDeposits(ctx context.Context, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	return s.txnRepo.ListEligibleUnprocessedDeposits(ctx, s.cfg.Deposit.ConfirmationThreshold, olderThan, limit)
}

// ============================================================================
// 入账任务处理（worker 侧）
// ============================================================================

// ProcessTask 执行一次入账
//
// 第二层幂等：processed_at 非空直接成功返回。
// 这一层不依赖队列和幂等键 —— 认领键 TTL 过期后的任务重投、
// Kafka 的至少一次投递，最终都被这里挡住。
//
// 【关键点】MarkProcessed 在前、加余额在后，二者同一事务：
// MarkProcessed 抢不到（RowsAffected=0）就直接放弃余额变更，
// 两个并发任务绝不可能都给钱包加钱。
func (s *DepositService) ProcessTask(ctx context.Context, transactionID int64) error {
	trans, err := s.txnRepo.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return retry.Permanent(err)
		}
		return err
	}

	if trans.ProcessedAt != nil {
		return nil
	}
	if trans.Type != model.TxnTypeDeposit {
		return retry.Permanent(fmt.Errorf("流水类型不是充值: id=%d, type=%s", transactionID, trans.Type))
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		applied, err := s.txnRepo.MarkProcessed(ctx, tx, transactionID, time.Now())
		if err != nil {
			return err
		}
		if !applied {
			// 另一个任务已落账，本次什么都不做
			return nil
		}

		if _, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, trans.UserID); err != nil {
			return err
		}
		if err := s.walletRepo.AdjustBuckets(ctx, tx, trans.UserID,
			trans.Amount, decimal.Zero, decimal.Zero); err != nil {
			return err
		}

		log.Printf("[DepositService] 充值入账: transactionID=%d, userID=%d, amount=%s",
			transactionID, trans.UserID, trans.Amount)
		return nil
	})
}

// HandleQueueMessage Kafka 消费回调
// 瞬时失败按统一策略有界重试；重试耗尽标记流水 FAILED 并留下
// 人工介入日志 —— 任务可以失败，但绝不能无声消失
func (s *DepositService) HandleQueueMessage(ctx context.Context, key, value []byte) error {
	var task creditTask
	if err := json.Unmarshal(value, &task); err != nil {
		log.Printf("[DepositWorker] 任务载荷解析失败: key=%s, err=%v", string(key), err)
		return err
	}

	// 单任务硬性时限，超时后由队列重投，幂等层保证重投安全
	taskCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := s.retryPolicy.Do(taskCtx, fmt.Sprintf("deposit-credit:%d", task.TransactionID), func(ctx context.Context) error {
		return s.ProcessTask(ctx, task.TransactionID)
	})
	if err != nil {
		if markErr := s.txnRepo.MarkFailed(ctx, task.TransactionID); markErr != nil {
			log.Printf("[DepositWorker] 标记流水失败状态失败: transactionID=%d, err=%v", task.TransactionID, markErr)
		}
		log.Printf("[DepositWorker] 入账任务最终失败，需人工介入: transactionID=%d, err=%v", task.TransactionID, err)
		return err
	}
	return nil
}
