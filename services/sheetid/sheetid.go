package sheetid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sahilchouksey/icm-reconcile/model"
)

// TestType is the paper a sheet records scores for
type TestType int

const (
	TestTypeObjectives TestType = 1
	TestTypeEssay      TestType = 2
	TestTypePracticals TestType = 3
)

// AllTestTypes lists test types in canonical order
var AllTestTypes = []TestType{TestTypeObjectives, TestTypeEssay, TestTypePracticals}

// IsValid reports whether t is one of 1, 2 or 3
func (t TestType) IsValid() bool {
	return t >= TestTypeObjectives && t <= TestTypePracticals
}

func (t TestType) String() string {
	switch t {
	case TestTypeObjectives:
		return "Objectives"
	case TestTypeEssay:
		return "Essay"
	case TestTypePracticals:
		return "Practicals"
	default:
		return fmt.Sprintf("TestType(%d)", int(t))
	}
}

// Prefix starts every encoded sheet token
const Prefix = "ICM"

const separator = "-"

// SheetID identifies a single ICM sheet. It is a comparable value and can be used as a map key.
type SheetID struct {
	ExamID      uint     `json:"exam_id" yaml:"exam_id"`
	SchoolID    uint     `json:"school_id" yaml:"school_id"`
	SubjectID   uint     `json:"subject_id" yaml:"subject_id"`
	Series      int      `json:"series" yaml:"series"`
	TestType    TestType `json:"test_type" yaml:"test_type"`
	SheetNumber int      `json:"sheet_number" yaml:"sheet_number"`
}

// Validate checks every field is present and in range
func (s SheetID) Validate() error {
	switch {
	case s.ExamID == 0:
		return fmt.Errorf("%w: exam id is required", model.ErrMalformedID)
	case s.SchoolID == 0:
		return fmt.Errorf("%w: school id is required", model.ErrMalformedID)
	case s.SubjectID == 0:
		return fmt.Errorf("%w: subject id is required", model.ErrMalformedID)
	case s.Series < 1:
		return fmt.Errorf("%w: series must be positive, got %d", model.ErrMalformedID, s.Series)
	case !s.TestType.IsValid():
		return fmt.Errorf("%w: test type must be 1, 2 or 3, got %d", model.ErrMalformedID, s.TestType)
	case s.SheetNumber < 1:
		return fmt.Errorf("%w: sheet number must be positive, got %d", model.ErrMalformedID, s.SheetNumber)
	}
	return nil
}

// String returns the canonical token
func (s SheetID) String() string {
	return Encode(s)
}

// Encode renders the canonical token ICM-<exam>-<school>-<subject>-<series>-<test_type>-<sheet_number>
func Encode(s SheetID) string {
	return strings.Join([]string{
		Prefix,
		strconv.FormatUint(uint64(s.ExamID), 10),
		strconv.FormatUint(uint64(s.SchoolID), 10),
		strconv.FormatUint(uint64(s.SubjectID), 10),
		strconv.Itoa(s.Series),
		strconv.Itoa(int(s.TestType)),
		strconv.Itoa(s.SheetNumber),
	}, separator)
}

// Decode parses a token produced by Encode. Any failure wraps model.ErrMalformedID.
func Decode(token string) (SheetID, error) {
	parts := strings.Split(strings.TrimSpace(token), separator)
	if len(parts) != 7 {
		return SheetID{}, fmt.Errorf("%w: expected 7 fields in %q, got %d", model.ErrMalformedID, token, len(parts))
	}
	if !strings.EqualFold(parts[0], Prefix) {
		return SheetID{}, fmt.Errorf("%w: %q does not start with %s", model.ErrMalformedID, token, Prefix)
	}

	var nums [6]uint64
	names := [6]string{"exam", "school", "subject", "series", "test type", "sheet number"}
	for i, p := range parts[1:] {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return SheetID{}, fmt.Errorf("%w: %s %q is not a positive integer", model.ErrMalformedID, names[i], p)
		}
		nums[i] = n
	}

	id := SheetID{
		ExamID:      uint(nums[0]),
		SchoolID:    uint(nums[1]),
		SubjectID:   uint(nums[2]),
		Series:      int(nums[3]),
		TestType:    TestType(nums[4]),
		SheetNumber: int(nums[5]),
	}
	if err := id.Validate(); err != nil {
		return SheetID{}, err
	}
	return id, nil
}

// DecodePtr decodes an optional token; a nil or blank token is malformed
func DecodePtr(token *string) (SheetID, error) {
	if token == nil || strings.TrimSpace(*token) == "" {
		return SheetID{}, fmt.Errorf("%w: no extracted id", model.ErrMalformedID)
	}
	return Decode(*token)
}

// NamesExam reports whether token looks like a sheet of the given exam, without full validation.
// Used to pre-filter documents before decoding.
func NamesExam(token string, examID uint) bool {
	prefix := Prefix + separator + strconv.FormatUint(uint64(examID), 10) + separator
	return len(token) > len(prefix) && strings.EqualFold(token[:len(prefix)], prefix)
}
