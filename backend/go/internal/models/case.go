package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CaseStatus 定义了案件的生命周期状态。
type CaseStatus string

const (
	CaseDraft    CaseStatus = "draft"
	CaseInReview CaseStatus = "in_review"
	CaseReady    CaseStatus = "ready"
	CaseFiled    CaseStatus = "filed"
	CaseClosed   CaseStatus = "closed"
)

// caseStatusOrder 是状态推进的唯一顺序。
var caseStatusOrder = map[CaseStatus]int{
	CaseDraft:    0,
	CaseInReview: 1,
	CaseReady:    2,
	CaseFiled:    3,
	CaseClosed:   4,
}

// Valid 判断状态值是否合法。
func (s CaseStatus) Valid() bool {
	_, ok := caseStatusOrder[s]
	return ok
}

// CanTransition 判断案件状态能否从 from 变为 to。
// 只允许前进一步，任何未关闭的状态都可以直接关闭。
func CanTransition(from, to CaseStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == CaseClosed {
		return false
	}
	if to == CaseClosed {
		return true
	}
	return caseStatusOrder[to] == caseStatusOrder[from]+1
}

// CaseProfile 是从简历中抽取的申请人画像。
type CaseProfile struct {
	Name              string   `json:"name"`
	Field             string   `json:"field"`
	Summary           string   `json:"summary"`
	Highlights        []string `json:"highlights"`
	SuggestedCriteria []string `json:"suggested_criteria"`
}

// Case 是一个申请案件，归属于单个用户。
type Case struct {
	ID                string                          `gorm:"primaryKey;size:36" json:"id"`
	OwnerID           uint                            `gorm:"not null;index" json:"owner_id"`
	ApplicationTypeID uint                            `gorm:"not null;index" json:"application_type_id"`
	ApplicationType   *ApplicationType                `gorm:"constraint:OnDelete:RESTRICT" json:"application_type,omitempty"`
	Title             string                          `gorm:"not null;size:255" json:"title"`
	Status            CaseStatus                      `gorm:"type:varchar(20);not null;default:'draft'" json:"status"`
	BeneficiaryName   string                          `gorm:"size:255" json:"beneficiary_name"`
	FieldOfExpertise  string                          `gorm:"size:255" json:"field_of_expertise"`
	Summary           string                          `gorm:"type:text" json:"summary"`
	SelectedCriteria  datatypes.JSONSlice[string]     `json:"selected_criteria"`
	SurveyAnswers     datatypes.JSON                  `json:"survey_answers"`
	Profile           datatypes.JSONType[CaseProfile] `json:"profile"`
	CreatedAt         time.Time                       `json:"created_at"`
	UpdatedAt         time.Time                       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt                  `gorm:"index" json:"-"`
}

// BeforeCreate 为新案件生成 UUID。
func (c *Case) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = CaseDraft
	}
	return nil
}

// HasCriterion 判断案件是否选择了某条标准。
func (c *Case) HasCriterion(key string) bool {
	for _, k := range c.SelectedCriteria {
		if k == key {
			return true
		}
	}
	return false
}
