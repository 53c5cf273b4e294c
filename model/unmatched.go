package model

import (
	"time"

	"gorm.io/gorm"
)

// UnmatchedStatus is the manual-disposition state of an unmatched row
type UnmatchedStatus string

const (
	UnmatchedStatusPending  UnmatchedStatus = "pending"
	UnmatchedStatusResolved UnmatchedStatus = "resolved"
	UnmatchedStatusIgnored  UnmatchedStatus = "ignored"
)

// UnmatchedReason explains why a row could not be bound to a registration
type UnmatchedReason string

const (
	UnmatchedReasonNoMatch      UnmatchedReason = "no_match"
	UnmatchedReasonAmbiguous    UnmatchedReason = "ambiguous"
	UnmatchedReasonInvalidScore UnmatchedReason = "invalid_score"
)

// UnmatchedExtractionRecord is an extracted row waiting for a human decision.
// Records are never deleted; only resolve/ignore change them after creation.
type UnmatchedExtractionRecord struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DocumentID    uint            `gorm:"not null;index" json:"document_id"`
	SheetID       string          `gorm:"type:varchar(100);index" json:"sheet_id"`
	SN            int             `json:"sn"`
	IndexNumber   *string         `gorm:"type:varchar(30)" json:"index_number,omitempty"`
	CandidateName *string         `json:"candidate_name,omitempty"`
	Score         *string         `gorm:"type:varchar(30)" json:"score,omitempty"`
	AttendMarker  *string         `gorm:"type:varchar(30)" json:"attend_marker,omitempty"`
	VerifyMarker  *string         `gorm:"type:varchar(30)" json:"verify_marker,omitempty"`
	Reason        UnmatchedReason `gorm:"type:varchar(20);not null" json:"reason"`
	MatchCount    int             `gorm:"default:0" json:"match_count"`
	Status        UnmatchedStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	Note          string          `gorm:"type:text" json:"note,omitempty"`

	ResolvedRegistrationID *uint      `gorm:"index" json:"resolved_registration_id,omitempty"`
	ResolvedAt             *time.Time `json:"resolved_at,omitempty"`

	Document Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:RESTRICT" json:"-"`
}

// UnmatchedRecordsCount is a helper used by list endpoints
type UnmatchedRecordsCount struct {
	Status UnmatchedStatus `json:"status"`
	Count  int64           `json:"count"`
}

// BeforeDelete keeps unmatched rows durable
func (r *UnmatchedExtractionRecord) BeforeDelete(tx *gorm.DB) error {
	return ErrRecordImmutable
}
