package models

import "time"

// Evaluator is a human expert who accepts review requests. ClientID scopes the
// evaluator to a tenant; requests from other tenants are invisible to them.
type Evaluator struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Email     string    `gorm:"size:256;uniqueIndex" json:"email"`
	ClientID  string    `gorm:"size:64;not null;index" json:"client_id"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
