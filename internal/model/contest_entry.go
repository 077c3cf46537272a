package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContestEntry 比赛报名表
// (contest_id, user_id) 唯一索引是防止重复报名的最终防线，
// 业务层的查重只是提前给出友好错误
type ContestEntry struct {
	ID           int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo      string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	ContestID    int64               `gorm:"uniqueIndex:uk_contest_user;not null" json:"contest_id"`
	UserID       int64               `gorm:"uniqueIndex:uk_contest_user;index;not null" json:"user_id"`
	FeeCharged   decimal.Decimal     `gorm:"type:decimal(30,8);not null" json:"fee_charged"` // 报名时刻的费用快照，后续改价不影响
	WinnerRank   *int                `gorm:"default:null" json:"winner_rank,omitempty"`
	PayoutAmount decimal.NullDecimal `gorm:"type:decimal(30,8)" json:"payout_amount,omitempty"`
	PayoutTxnNo  string              `gorm:"type:varchar(64)" json:"payout_txn_no,omitempty"` // 派奖流水号，只会写入一次
	CreatedAt    time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ContestEntry) TableName() string {
	return "contest_entries"
}
