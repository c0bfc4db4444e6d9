package model

import (
	"time"
)

// UserReferral 推荐关系表
// 每个用户至多一条，写入后不可变更（重复设置是错误而不是幂等）
// 不允许自荐，整体构成森林
type UserReferral struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	ReferrerID int64     `gorm:"index;not null" json:"referrer_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (UserReferral) TableName() string {
	return "user_referrals"
}

// TeamMember 团队查询结果，按 (layer, user_id) 排序返回
type TeamMember struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	MemberLevel int    `json:"member_level"`
	Layer       int    `json:"layer"`
}
