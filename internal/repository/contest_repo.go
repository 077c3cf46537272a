package repository

import (
	"context"
	"errors"
	"time"

	"cricketledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrContestNotFound      = errors.New("比赛不存在")
	ErrContestStatusInvalid = errors.New("比赛状态不允许该操作")
	ErrContestCodeTaken     = errors.New("比赛加入码已被占用")
)

type ContestRepository struct {
	db *gorm.DB
}

func NewContestRepository(db *gorm.DB) *ContestRepository {
	return &ContestRepository{db: db}
}

// Create 创建比赛
// 加入码唯一索引冲突翻译成 ErrContestCodeTaken，调用方换码重试
func (r *ContestRepository) Create(ctx context.Context, contest *model.Contest) error {
	err := r.db.WithContext(ctx).Create(contest).Error
	if err != nil && isDuplicateKeyError(err) {
		return ErrContestCodeTaken
	}
	return err
}

func (r *ContestRepository) GetByID(ctx context.Context, id int64) (*model.Contest, error) {
	var contest model.Contest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&contest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	return &contest, nil
}

func (r *ContestRepository) GetByCode(ctx context.Context, code string) (*model.Contest, error) {
	var contest model.Contest
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&contest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	return &contest, nil
}

// GetByIDForUpdate 行级排他锁读取
// 报名事务先锁比赛行再数人数，并发报名在这一行上串行化，
// 人数上限的判定因此不会出现"两个请求都看见还剩一个名额"
func (r *ContestRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Contest, error) {
	var contest model.Contest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&contest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	return &contest, nil
}

// UpdateStatus 带状态机校验的状态变更
// WHERE 上带旧状态 + RowsAffected 判断，并发变更只有一个请求能赢
func (r *ContestRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if !model.CanContestTransitionTo(fromStatus, toStatus) {
		return ErrContestStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Contest{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrContestStatusInvalid
	}

	return nil
}

// MarkSettled 置为已结算并写入结算时间
// 必须在派奖事务内调用，和最后一笔派奖同生共死
func (r *ContestRepository) MarkSettled(ctx context.Context, tx *gorm.DB, id int64, settledAt time.Time) error {
	result := tx.WithContext(ctx).
		Model(&model.Contest{}).
		Where("id = ? AND status = ?", id, model.ContestStatusClosed).
		Updates(map[string]interface{}{
			"status":     model.ContestStatusSettled,
			"settled_at": settledAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrContestStatusInvalid
	}

	return nil
}

func (r *ContestRepository) ListByMatchID(ctx context.Context, matchID int64) ([]*model.Contest, error) {
	var contests []*model.Contest
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at DESC").
		Find(&contests).Error
	return contests, err
}
