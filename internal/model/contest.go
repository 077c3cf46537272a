package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ContestStatusScheduled = "SCHEDULED"
	ContestStatusOpen      = "OPEN"
	ContestStatusClosed    = "CLOSED"
	ContestStatusSettled   = "SETTLED"   // 终态
	ContestStatusCancelled = "CANCELLED" // 终态
)

// ValidContestTransitions 比赛状态机
// SETTLED 和 CANCELLED 是终态，没有任何出边
var ValidContestTransitions = map[string][]string{
	ContestStatusScheduled: {ContestStatusOpen},
	ContestStatusOpen:      {ContestStatusClosed, ContestStatusCancelled},
	ContestStatusClosed:    {ContestStatusSettled, ContestStatusCancelled},
}

func CanContestTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidContestTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// PrizeSlot 奖金结构中的一档：名次 + 分成比例（百分数）
type PrizeSlot struct {
	Rank int             `json:"rank"`
	Pct  decimal.Decimal `json:"pct"`
}

// Contest 预测比赛表
// 进入 SETTLED / CANCELLED 后资金相关字段不再变更
type Contest struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	MatchID        int64           `gorm:"index;not null" json:"match_id"` // 所属板球赛事
	Title          string          `gorm:"type:varchar(128);not null" json:"title"`
	Code           string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"` // 可分享的加入码
	EntryFee       decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"entry_fee"`
	Currency       string          `gorm:"type:varchar(16);not null" json:"currency"`
	MaxPlayers     *int            `gorm:"default:null" json:"max_players,omitempty"` // 为空表示不限人数
	PrizeStructure []PrizeSlot     `gorm:"serializer:json;type:json" json:"prize_structure"`
	CommissionPct  decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"commission_pct"`
	Status         string          `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedBy      int64           `gorm:"not null" json:"created_by"` // 创建比赛的管理员
	SettledAt      *time.Time      `json:"settled_at,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contest) TableName() string {
	return "contests"
}

// IsTerminal 是否已进入终态
func (c *Contest) IsTerminal() bool {
	return c.Status == ContestStatusSettled || c.Status == ContestStatusCancelled
}
