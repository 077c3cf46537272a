package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TxnTypeDeposit      = "DEPOSIT"       // 链上充值入账
	TxnTypeContestEntry = "CONTEST_ENTRY" // 比赛报名扣费
	TxnTypePayout       = "PAYOUT"        // 比赛结算派奖
	TxnTypeRefund       = "REFUND"        // 比赛取消退款
	TxnTypeWithdrawal   = "WITHDRAWAL"    // 提现扣减
)

const (
	TxnStatusPending   = "PENDING"   // 等待确认数达标
	TxnStatusConfirmed = "CONFIRMED" // 已入账
	TxnStatusFailed    = "FAILED"    // 重试耗尽，需人工介入
)

// 关联实体类型（RelatedType 取值）
const (
	RelatedContest    = "CONTEST"
	RelatedEntry      = "CONTEST_ENTRY"
	RelatedWithdrawal = "WITHDRAWAL"
)

// TxnMetadata 流水附加信息
// 固定结构化字段，不使用自由字典，避免 schema 悄悄漂移
type TxnMetadata struct {
	Chain         string `json:"chain,omitempty"`
	ToAddress     string `json:"to_address,omitempty"`
	Confirmations int    `json:"confirmations,omitempty"`
	BlockHeight   uint64 `json:"block_height,omitempty"`
	Note          string `json:"note,omitempty"`
}

// ============================================================================
// 资金流水实体
// ============================================================================

// Transaction 资金流水表
// 记录每一笔余额变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. ProcessedAt 是"余额效果已落账"的唯一真相来源，
//    为空表示效果尚未应用，非空表示恰好应用过一次
// 3. TxHash 在充值流水上全局唯一 —— 同一笔链上交易只能产生一条流水
type Transaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64           `gorm:"index;not null" json:"user_id"`
	Type          string          `gorm:"type:varchar(20);not null" json:"type"`
	Amount        decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"amount"` // 正数入账，负数出账
	Currency      string          `gorm:"type:varchar(16);not null" json:"currency"`
	TxHash        *string         `gorm:"type:varchar(128);uniqueIndex" json:"tx_hash,omitempty"` // 链上交易哈希，仅充值流水有值
	RelatedType   string          `gorm:"type:varchar(20)" json:"related_type,omitempty"`         // 关联实体类型
	RelatedID     int64           `gorm:"index" json:"related_id,omitempty"`                      // 关联实体ID
	Metadata      TxnMetadata     `gorm:"serializer:json;type:json" json:"metadata"`
	Status        string          `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"` // 余额效果落账时间
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
