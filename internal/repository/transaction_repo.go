package repository

import (
	"context"
	"errors"
	"time"

	"cricketledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound = errors.New("流水不存在")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// GetByTxHash 按链上交易哈希查询充值流水，不存在返回 (nil, nil)
func (r *TransactionRepository) GetByTxHash(ctx context.Context, txHash string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// GetByTypeAndRelated 按类型和关联实体查询流水
// 取消退款用它判断某个报名是否已经退过款
func (r *TransactionRepository) GetByTypeAndRelated(ctx context.Context, txnType, relatedType string, relatedID int64) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND related_type = ? AND related_id = ?", txnType, relatedType, relatedID).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// UpdateMetadata 覆盖式更新流水元数据
// 确认数/区块高度总是以最新通知为准，重复覆盖是安全的
func (r *TransactionRepository) UpdateMetadata(ctx context.Context, id int64, meta model.TxnMetadata) error {
	return r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", id).
		Update("metadata", meta).Error
}

// MarkProcessed 把流水标记为已落账
//
// 【关键点】processed_at IS NULL 条件 + RowsAffected 判断
// 是"恰好一次"语义的最终闸门：两个并发任务同时走到这里，
// 只有一个能把 RowsAffected 更新为 1，另一个必须放弃余额变更
func (r *TransactionRepository) MarkProcessed(ctx context.Context, tx *gorm.DB, id int64, processedAt time.Time) (bool, error) {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]interface{}{
			"processed_at": processedAt,
			"status":       model.TxnStatusConfirmed,
		})

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed 重试耗尽后标记失败，等待人工介入
func (r *TransactionRepository) MarkFailed(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND processed_at IS NULL", id).
		Update("status", model.TxnStatusFailed).Error
}

// ListEligibleUnprocessedDeposits 查询确认数达标但一直未落账的充值流水
// 补偿任务用它找回"认领键已写入但入队前进程崩溃"的漏单
func (r *TransactionRepository) ListEligibleUnprocessedDeposits(ctx context.Context, threshold int, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND processed_at IS NULL AND created_at < ?",
			model.TxnTypeDeposit, model.TxnStatusPending, olderThan).
		Where("JSON_EXTRACT(metadata, '$.confirmations') >= ?", threshold).
		Order("created_at ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}
