package model

import "errors"

// Error taxonomy shared by the reconciliation core
var (
	// ErrMalformedID means a sheet identifier token cannot be decoded
	ErrMalformedID = errors.New("malformed sheet id")
	// ErrInvalidExam means the exam reference is unknown
	ErrInvalidExam = errors.New("invalid exam")
	// ErrTransient means the extraction or document service is unreachable; callers may retry
	ErrTransient = errors.New("extraction service unavailable")
	// ErrNotExtracted means scores were applied before extraction succeeded
	ErrNotExtracted = errors.New("document scores not extracted")
	// ErrAlreadyResolved means an unmatched record was already resolved
	ErrAlreadyResolved = errors.New("unmatched record already resolved")
	// ErrAlreadyIgnored means an unmatched record was already ignored
	ErrAlreadyIgnored = errors.New("unmatched record already ignored")

	ErrDocumentNotFound     = errors.New("document not found")
	ErrRecordNotFound       = errors.New("unmatched record not found")
	ErrRegistrationNotFound = errors.New("subject registration not found")
	ErrRegistrationMismatch = errors.New("registration is outside the sheet's exam/subject")
	ErrSubjectNotConfigured = errors.New("subject is not configured for the exam")
	ErrIllegalTransition    = errors.New("illegal extraction status transition")
	ErrRecordImmutable      = errors.New("unmatched records cannot be deleted")
)
