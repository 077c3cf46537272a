package model

import (
	"time"
)

const (
	UserStatusActive    = "ACTIVE"
	UserStatusSuspended = "SUSPENDED"
)

// User 用户表
// TelegramID 是外部消息平台的身份标识，注册后不可变更
type User struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TelegramID int64     `gorm:"uniqueIndex;not null" json:"telegram_id"`
	Status     string    `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
