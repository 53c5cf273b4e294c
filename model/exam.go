package model

import (
	"time"

	"gorm.io/gorm"
)

// SubjectType separates compulsory subjects from optional ones
type SubjectType string

const (
	SubjectTypeCore     SubjectType = "CORE"
	SubjectTypeElective SubjectType = "ELECTIVE"
)

// IsValid reports whether the subject type is one of the known values
func (t SubjectType) IsValid() bool {
	return t == SubjectTypeCore || t == SubjectTypeElective
}

// Exam represents one sitting of an examination (e.g., BECE 2025)
type Exam struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
	Name               string         `gorm:"not null" json:"name"`
	Year               int            `gorm:"not null" json:"year"`
	SeriesCount        int            `gorm:"default:1" json:"series_count"`         // Number of question-paper series
	CandidatesPerSheet int            `gorm:"default:0" json:"candidates_per_sheet"` // 0 = use the configured default

	// Relationships
	Schools  []ExamSchool  `gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE" json:"schools,omitempty"`
	Subjects []ExamSubject `gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE" json:"subjects,omitempty"`
}

// School is an examination centre that registers candidates
type School struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Code      string         `gorm:"uniqueIndex;not null" json:"code"`
}

// ExamSchool binds a school to an exam
type ExamSchool struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExamID    uint      `gorm:"not null;uniqueIndex:idx_exam_school" json:"exam_id"`
	SchoolID  uint      `gorm:"not null;uniqueIndex:idx_exam_school" json:"school_id"`

	School School `gorm:"foreignKey:SchoolID;constraint:OnDelete:CASCADE" json:"school,omitempty"`
}

// Subject represents an examinable subject
type Subject struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Name        string         `gorm:"not null" json:"name"`
	Code        string         `gorm:"uniqueIndex;not null" json:"code"`
	SubjectType SubjectType    `gorm:"type:varchar(10);not null;default:'CORE'" json:"subject_type"`
}

// ExamSubject carries the per-exam scoring configuration of a subject.
// A nil max score means the corresponding paper is not written.
type ExamSubject struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ExamID        uint      `gorm:"not null;uniqueIndex:idx_exam_subject" json:"exam_id"`
	SubjectID     uint      `gorm:"not null;uniqueIndex:idx_exam_subject" json:"subject_id"`
	ObjMaxScore   *float64  `json:"obj_max_score"`
	EssayMaxScore *float64  `json:"essay_max_score"`
	PractMaxScore *float64  `json:"pract_max_score"`
	ObjPct        *float64  `json:"obj_pct"`   // Weight of the objective paper in the total (percent)
	EssayPct      *float64  `json:"essay_pct"` // Weight of the essay paper in the total (percent)
	PractPct      *float64  `json:"pract_pct"` // Weight of the practical paper in the total (percent)

	// Relationships
	Subject     Subject      `gorm:"foreignKey:SubjectID;constraint:OnDelete:CASCADE" json:"subject,omitempty"`
	GradeRanges []GradeRange `gorm:"foreignKey:ExamSubjectID;constraint:OnDelete:CASCADE" json:"grade_ranges,omitempty"`
}

// GradeRange maps an inclusive total-score interval to a grade
type GradeRange struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	ExamSubjectID uint    `gorm:"not null;index" json:"exam_subject_id"`
	MinScore      float64 `gorm:"not null" json:"min_score"`
	MaxScore      float64 `gorm:"not null" json:"max_score"`
	Grade         string  `gorm:"type:varchar(10);not null" json:"grade"`
}
