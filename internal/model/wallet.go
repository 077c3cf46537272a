package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet 用户钱包表
// 三个独立余额桶，任何时刻每个桶都必须 >= 0
//
// 【重要】余额只能通过 WalletRepository 的原子复合更新修改，
// 禁止在事务之外直接给字段赋值
type Wallet struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	DepositBalance decimal.Decimal `gorm:"type:decimal(30,8);not null;default:0" json:"deposit_balance"` // 充值余额
	WinningBalance decimal.Decimal `gorm:"type:decimal(30,8);not null;default:0" json:"winning_balance"` // 奖金余额
	BonusBalance   decimal.Decimal `gorm:"type:decimal(30,8);not null;default:0" json:"bonus_balance"`   // 赠送余额
	Version        int             `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// TotalBalance 三桶余额之和，报名资格校验使用
func (w *Wallet) TotalBalance() decimal.Decimal {
	return w.DepositBalance.Add(w.WinningBalance).Add(w.BonusBalance)
}
