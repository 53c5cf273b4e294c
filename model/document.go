package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IDExtractionStatus tracks reading the sheet identifier off a scanned ICM
type IDExtractionStatus string

const (
	IDExtractionStatusPending IDExtractionStatus = "pending"
	IDExtractionStatusSuccess IDExtractionStatus = "success"
	IDExtractionStatusError   IDExtractionStatus = "error"
)

// Document represents an uploaded ICM sheet.
// The reconciliation core only reads and writes the extraction-related fields.
type Document struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	ExamID     *uint          `gorm:"index" json:"exam_id,omitempty"`
	FileName   string         `gorm:"not null" json:"file_name"`
	MimeType   string         `gorm:"type:varchar(100)" json:"mime_type"`
	StorageKey string         `gorm:"type:varchar(500)" json:"storage_key"` // Spaces key of the scanned file

	// Sheet identity, decoded from ExtractedID when available
	ExtractedID        *string            `gorm:"type:varchar(100);index" json:"extracted_id,omitempty"`
	SchoolID           *uint              `gorm:"index" json:"school_id,omitempty"`
	SubjectID          *uint              `gorm:"index" json:"subject_id,omitempty"`
	IDExtractionStatus IDExtractionStatus `gorm:"type:varchar(20);default:'pending'" json:"id_extraction_status"`

	// Score extraction job, embedded in the document
	ScoresExtractionStatus  ExtractionStatus            `gorm:"type:varchar(20);default:'pending';index" json:"scores_extraction_status"`
	ScoresExtractionJobID   string                      `gorm:"type:varchar(64);index" json:"scores_extraction_job_id,omitempty"`
	ScoresExtractionError   string                      `gorm:"type:text" json:"scores_extraction_error,omitempty"`
	ScoresExtractionData    datatypes.JSON              `json:"scores_extraction_data,omitempty"`
	ScoresExtractionMethods datatypes.JSONSlice[string] `json:"scores_extraction_methods"`
	ScoresExtractedAt       *time.Time                  `json:"scores_extracted_at,omitempty"`
}
