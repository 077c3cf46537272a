package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	WithdrawalStatusPending  = "PENDING"
	WithdrawalStatusApproved = "APPROVED"
	WithdrawalStatusRejected = "REJECTED"
	WithdrawalStatusPaid     = "PAID"
)

// Withdrawal 提现申请表
// 申请时即扣减奖金余额，驳回时原路退回
type Withdrawal struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	WithdrawalNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"withdrawal_no"`
	UserID       int64           `gorm:"index;not null" json:"user_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"amount"`
	Currency     string          `gorm:"type:varchar(16);not null" json:"currency"`
	Address      string          `gorm:"type:varchar(256);not null" json:"address"` // 收款链上地址
	Status       string          `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	ReviewedBy   int64           `json:"reviewed_by,omitempty"` // 审核管理员
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}
