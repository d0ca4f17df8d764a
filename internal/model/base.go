package model

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel ID 通常由雪花算法预先分配，生成失败时回退到数据库自增
type BaseModel struct {
	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id,string"`
}
