package models

import "time"

// ApplicationType 代表一种签证申请类别，例如 EB1A、O1A、EB2NIW。
type ApplicationType struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	Code        string            `gorm:"uniqueIndex;not null;size:32" json:"code"`
	Name        string            `gorm:"not null;size:255" json:"name"`
	Description string            `gorm:"type:text" json:"description"`
	Active      bool              `gorm:"not null;default:true" json:"active"`
	Criteria    []CriteriaMapping `gorm:"constraint:OnDelete:CASCADE" json:"criteria,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// CriteriaMapping 是某一申请类别下的一条法规标准，例如 EB-1A 的 "awards"。
// (ApplicationTypeID, CriterionKey) 唯一。
type CriteriaMapping struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ApplicationTypeID uint      `gorm:"not null;uniqueIndex:idx_type_criterion" json:"application_type_id"`
	CriterionKey      string    `gorm:"not null;size:64;uniqueIndex:idx_type_criterion" json:"criterion_key"`
	Title             string    `gorm:"not null;size:255" json:"title"`
	Description       string    `gorm:"type:text" json:"description"`
	RegulationRef     string    `gorm:"size:128" json:"regulation_ref"`
	EvidenceHints     string    `gorm:"type:text" json:"evidence_hints"`
	SortOrder         int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AgentPrompt 是一条可由管理员编辑的提示词，UserTemplate 使用 text/template 语法。
type AgentPrompt struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Key          string    `gorm:"uniqueIndex;not null;size:128" json:"key"`
	Name         string    `gorm:"not null;size:255" json:"name"`
	SystemPrompt string    `gorm:"type:text" json:"system_prompt"`
	UserTemplate string    `gorm:"type:text;not null" json:"user_template"`
	Model        string    `gorm:"size:128" json:"model"`
	Temperature  float32   `gorm:"not null;default:0" json:"temperature"`
	Version      int       `gorm:"not null;default:1" json:"version"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TemplateKind 定义了文书模板的种类。
type TemplateKind string

const (
	TemplateRecommendationLetter TemplateKind = "recommendation_letter"
	TemplatePetitionLetter       TemplateKind = "petition_letter"
	TemplateCoverLetter          TemplateKind = "cover_letter"
	TemplateExhibitIndex         TemplateKind = "exhibit_index"
)

// Valid 判断模板种类是否合法。
func (k TemplateKind) Valid() bool {
	switch k {
	case TemplateRecommendationLetter, TemplatePetitionLetter, TemplateCoverLetter, TemplateExhibitIndex:
		return true
	}
	return false
}

// Template 是一份文书模板，Body 使用 text/template 语法。
type Template struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	Name              string           `gorm:"uniqueIndex;not null;size:191" json:"name"`
	Kind              TemplateKind     `gorm:"type:varchar(32);not null" json:"kind"`
	ApplicationTypeID *uint            `gorm:"index" json:"application_type_id,omitempty"`
	ApplicationType   *ApplicationType `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Body              string           `gorm:"type:longtext;not null" json:"body"`
	Version           int              `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}
