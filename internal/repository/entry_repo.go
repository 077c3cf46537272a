package repository

import (
	"context"
	"errors"
	"strings"

	"cricketledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrEntryNotFound  = errors.New("报名记录不存在")
	ErrDuplicateEntry = errors.New("已经报名过该比赛")
	ErrPayoutApplied  = errors.New("该报名已派过奖")
)

type EntryRepository struct {
	db *gorm.DB
}

func NewEntryRepository(db *gorm.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// Create 创建报名记录
// 唯一索引 uk_contest_user 是 (contest, user) 最多一条的最终防线，
// 冲突错误翻译成 ErrDuplicateEntry
func (r *EntryRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.ContestEntry) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(entry).Error
	if err != nil && isDuplicateKeyError(err) {
		return ErrDuplicateEntry
	}
	return err
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// mysql 驱动未翻译时的兜底（Error 1062: Duplicate entry）
	return strings.Contains(err.Error(), "Duplicate entry")
}

func (r *EntryRepository) GetByID(ctx context.Context, id int64) (*model.ContestEntry, error) {
	var entry model.ContestEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *EntryRepository) GetByContestAndUser(ctx context.Context, tx *gorm.DB, contestID, userID int64) (*model.ContestEntry, error) {
	if tx == nil {
		tx = r.db
	}
	var entry model.ContestEntry
	err := tx.WithContext(ctx).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// CountByContest 统计报名人数
// 人数上限校验必须在持有比赛行锁的事务内调用，数的是真实行数而不是预占名额
func (r *EntryRepository) CountByContest(ctx context.Context, tx *gorm.DB, contestID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.ContestEntry{}).
		Where("contest_id = ?", contestID).
		Count(&count).Error
	return count, err
}

func (r *EntryRepository) ListByContest(ctx context.Context, tx *gorm.DB, contestID int64) ([]*model.ContestEntry, error) {
	if tx == nil {
		tx = r.db
	}
	var entries []*model.ContestEntry
	err := tx.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// GetByContestAndRank 找出持有某名次的报名记录，没有则返回 (nil, nil)
func (r *EntryRepository) GetByContestAndRank(ctx context.Context, tx *gorm.DB, contestID int64, rank int) (*model.ContestEntry, error) {
	if tx == nil {
		tx = r.db
	}
	var entry model.ContestEntry
	err := tx.WithContext(ctx).
		Where("contest_id = ? AND winner_rank = ?", contestID, rank).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// UpdateWinnerRank 结算前由管理员预先给报名记录指定名次
func (r *EntryRepository) UpdateWinnerRank(ctx context.Context, entryID int64, rank int) error {
	result := r.db.WithContext(ctx).
		Model(&model.ContestEntry{}).
		Where("id = ? AND payout_txn_no = ''", entryID).
		Update("winner_rank", rank)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPayoutApplied
	}
	return nil
}

// SetPayout 写入派奖结果
//
// 【关键点】payout_txn_no = '' 条件保证派奖字段只会被写入一次，
// 重复结算走不到这里（settled_at 已拦截），这里是最后一道保险
func (r *EntryRepository) SetPayout(ctx context.Context, tx *gorm.DB, entryID int64, amount decimal.Decimal, payoutTxnNo string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.ContestEntry{}).
		Where("id = ? AND payout_txn_no = ''", entryID).
		Updates(map[string]interface{}{
			"payout_amount": amount,
			"payout_txn_no": payoutTxnNo,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrPayoutApplied
	}

	return nil
}
