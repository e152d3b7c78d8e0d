package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CasePackage 是一次案件打包的结果，(CaseID, Version) 唯一。
type CasePackage struct {
	ID          string                      `gorm:"primaryKey;size:36" json:"id"`
	CaseID      string                      `gorm:"not null;size:36;uniqueIndex:idx_case_version" json:"case_id"`
	Case        *Case                       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Version     int                         `gorm:"not null;uniqueIndex:idx_case_version" json:"version"`
	Title       string                      `gorm:"size:255" json:"title"`
	ObjectKey   string                      `gorm:"not null;size:512" json:"object_key"`
	PageCount   int                         `gorm:"not null" json:"page_count"`
	Size        int64                       `json:"size"`
	DocumentIDs datatypes.JSONSlice[string] `json:"document_ids"`
	Skipped     datatypes.JSONSlice[string] `json:"skipped"`
	CreatedByID uint                        `gorm:"not null" json:"created_by_id"`
	CreatedAt   time.Time                   `json:"created_at"`
}

// BeforeCreate 为新的打包记录生成 UUID。
func (p *CasePackage) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
