package model

import "time"

// PortClaim reserves an external port for one service. The primary key on
// Port turns reservation into an insert-if-absent.
type PortClaim struct {
	Port       int       `gorm:"primaryKey;autoIncrement:false"`
	ServiceID  string    `gorm:"column:service_id;index;not null"`
	CreateTime time.Time `gorm:"column:create_time;autoCreateTime"`
}
