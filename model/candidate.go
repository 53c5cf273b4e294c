package model

import (
	"time"

	"gorm.io/gorm"
)

// AbsentTotal is the reserved total score for a candidate absent from the whole subject.
// It is distinct from a NULL total, which means the score is still pending.
const AbsentTotal float64 = -1

// Candidate is a person registered to sit an exam at a school
type Candidate struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	ExamID      uint           `gorm:"not null;index" json:"exam_id"`
	SchoolID    uint           `gorm:"not null;index" json:"school_id"`
	IndexNumber string         `gorm:"type:varchar(30);not null;index" json:"index_number"`
	Name        string         `gorm:"not null" json:"name"`

	School School `gorm:"foreignKey:SchoolID;constraint:OnDelete:CASCADE" json:"school,omitempty"`
}

// SubjectRegistration is a candidate's entry for one subject of an exam, holding its score
type SubjectRegistration struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	ExamID      uint           `gorm:"not null;index:idx_registration_scope" json:"exam_id"`
	SubjectID   uint           `gorm:"not null;index:idx_registration_scope" json:"subject_id"`
	CandidateID uint           `gorm:"not null;index" json:"candidate_id"`

	// Score components. A nil raw score with Absent=false means the paper is pending.
	ObjRawScore     *float64 `json:"obj_raw_score"`
	ObjNormalized   *float64 `json:"obj_normalized"`
	ObjAbsent       bool     `gorm:"default:false" json:"obj_absent"`
	EssayRawScore   *float64 `json:"essay_raw_score"`
	EssayNormalized *float64 `json:"essay_normalized"`
	EssayAbsent     bool     `gorm:"default:false" json:"essay_absent"`
	PractRawScore   *float64 `json:"pract_raw_score"`
	PractNormalized *float64 `json:"pract_normalized"`
	PractAbsent     bool     `gorm:"default:false" json:"pract_absent"`
	TotalScore      *float64 `json:"total_score"` // -1 = absent for the whole subject
	Grade           *string  `gorm:"type:varchar(10)" json:"grade"`

	ScoredFromDocumentID *uint      `gorm:"index" json:"scored_from_document_id,omitempty"`
	ScoredAt             *time.Time `json:"scored_at,omitempty"`

	Candidate Candidate `gorm:"foreignKey:CandidateID;constraint:OnDelete:CASCADE" json:"candidate,omitempty"`
}

// IsAbsent reports whether the candidate was absent for the whole subject
func (r *SubjectRegistration) IsAbsent() bool {
	return r.TotalScore != nil && *r.TotalScore == AbsentTotal
}
