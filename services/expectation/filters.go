package expectation

import (
	"fmt"

	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
)

// Filters narrow the expected sheet universe. Nil fields do not filter.
type Filters struct {
	SchoolID    *uint              `json:"school_id,omitempty"`
	SubjectID   *uint              `json:"subject_id,omitempty"`
	TestType    *sheetid.TestType  `json:"test_type,omitempty"`
	SubjectType *model.SubjectType `json:"subject_type,omitempty"`
}

// Validate rejects filter values outside their domains
func (f Filters) Validate() error {
	if f.TestType != nil && !f.TestType.IsValid() {
		return fmt.Errorf("test_type must be 1, 2 or 3, got %d", *f.TestType)
	}
	if f.SubjectType != nil && !f.SubjectType.IsValid() {
		return fmt.Errorf("subject_type must be CORE or ELECTIVE, got %q", *f.SubjectType)
	}
	return nil
}

// Match reports whether a sheet passes the filters. subjectType is the type of
// id.SubjectID; it is only consulted when a subject type filter is set.
func (f Filters) Match(id sheetid.SheetID, subjectType model.SubjectType) bool {
	if f.SchoolID != nil && id.SchoolID != *f.SchoolID {
		return false
	}
	if f.SubjectID != nil && id.SubjectID != *f.SubjectID {
		return false
	}
	if f.TestType != nil && id.TestType != *f.TestType {
		return false
	}
	if f.SubjectType != nil && subjectType != *f.SubjectType {
		return false
	}
	return true
}
