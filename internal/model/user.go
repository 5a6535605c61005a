package model

import (
	"time"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// User 后台账户，只用于管理接口
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"unique;not null"`
	Password  string    `json:"-" gorm:"not null"`
	Email     string    `json:"email" gorm:"unique;not null"`
	Role      string    `json:"role" gorm:"default:'operator'"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LastLogin time.Time `json:"last_login"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin && !u.Disabled
}
