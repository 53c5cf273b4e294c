package reconcile

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/expectation"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
	"gorm.io/gorm"
)

// Reconciler diffs the expected sheet set of an exam against uploaded documents
type Reconciler struct {
	db        *gorm.DB
	generator *expectation.Generator
}

// NewReconciler creates a new reconciler
func NewReconciler(db *gorm.DB, generator *expectation.Generator) *Reconciler {
	return &Reconciler{
		db:        db,
		generator: generator,
	}
}

// Upload is the part of a document the reconciler looks at
type Upload struct {
	DocumentID  uint
	ExtractedID *string
}

// Duplicate is a sheet uploaded by more than one document
type Duplicate struct {
	SheetID     string `json:"sheet_id"`
	DocumentIDs []uint `json:"document_ids"`
}

// SchoolGap is the per-school breakdown of a comparison
type SchoolGap struct {
	SchoolID uint `json:"school_id"`
	Expected int  `json:"expected"`
	Uploaded int  `json:"uploaded"`
	Missing  int  `json:"missing"`
}

// Comparison is the result of reconciling an exam
type Comparison struct {
	ExamID                      uint        `json:"exam_id"`
	Expected                    []string    `json:"expected"`
	Uploaded                    []string    `json:"uploaded"`
	Missing                     []string    `json:"missing"`
	Extra                       []string    `json:"extra"`
	TotalExpected               int         `json:"total_expected"`
	TotalUploaded               int         `json:"total_uploaded"`
	Matched                     int         `json:"matched"`
	CompletionRate              float64     `json:"completion_rate"`
	DocumentsWithoutExtractedID int         `json:"documents_without_extracted_id"`
	DuplicateUploads            []Duplicate `json:"duplicate_uploads"`
	MissingBySchool             []SchoolGap `json:"missing_by_school"`
}

// Compare reconciles the expected sheets of an exam with its uploaded documents
func (r *Reconciler) Compare(ctx context.Context, examID uint, filters expectation.Filters) (*Comparison, error) {
	snap, err := r.generator.LoadSnapshot(ctx, examID)
	if err != nil {
		return nil, err
	}
	expected := expectation.Expand(snap, filters)

	uploads, err := r.loadUploads(ctx, examID)
	if err != nil {
		return nil, err
	}

	types, err := r.subjectTypes(ctx, snap, uploads)
	if err != nil {
		return nil, err
	}

	return Reconcile(examID, expected, uploads, filters, types), nil
}

// loadUploads returns documents filed under the exam or whose token names it
func (r *Reconciler) loadUploads(ctx context.Context, examID uint) ([]Upload, error) {
	var docs []model.Document
	prefix := fmt.Sprintf("%s-%d-%%", sheetid.Prefix, examID)
	if err := r.db.WithContext(ctx).
		Select("id", "exam_id", "extracted_id").
		Where("exam_id = ? OR UPPER(TRIM(extracted_id)) LIKE ?", examID, prefix).
		Order("id").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to load uploaded documents: %w", err)
	}

	uploads := make([]Upload, 0, len(docs))
	for _, d := range docs {
		uploads = append(uploads, Upload{DocumentID: d.ID, ExtractedID: d.ExtractedID})
	}
	return uploads, nil
}

// subjectTypes resolves subject_id -> subject_type for every subject seen in expectations or uploads
func (r *Reconciler) subjectTypes(ctx context.Context, snap *expectation.ExamSnapshot, uploads []Upload) (map[uint]model.SubjectType, error) {
	types := make(map[uint]model.SubjectType, len(snap.Subjects))
	for id, cfg := range snap.Subjects {
		types[id] = cfg.SubjectType
	}

	var unknown []uint
	for _, u := range uploads {
		id, err := sheetid.DecodePtr(u.ExtractedID)
		if err != nil {
			continue
		}
		if _, ok := types[id.SubjectID]; !ok {
			unknown = append(unknown, id.SubjectID)
			types[id.SubjectID] = ""
		}
	}
	if len(unknown) == 0 {
		return types, nil
	}

	var subjects []model.Subject
	if err := r.db.WithContext(ctx).
		Select("id", "subject_type").
		Where("id IN ?", unknown).
		Find(&subjects).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve subject types: %w", err)
	}
	for _, s := range subjects {
		types[s.ID] = s.SubjectType
	}
	return types, nil
}

// Reconcile is the pure part of Compare. Undecodable uploads are counted, never diffed.
func Reconcile(examID uint, expected sheetid.Set, uploads []Upload, filters expectation.Filters, types map[uint]model.SubjectType) *Comparison {
	uploaded := sheetid.NewSet()
	owners := make(map[sheetid.SheetID][]uint)
	withoutID := 0

	for _, u := range uploads {
		if u.ExtractedID == nil || strings.TrimSpace(*u.ExtractedID) == "" {
			withoutID++
			continue
		}
		id, err := sheetid.DecodePtr(u.ExtractedID)
		if err != nil {
			withoutID++
			continue
		}
		if !filters.Match(id, types[id.SubjectID]) {
			continue
		}
		uploaded.Add(id)
		owners[id] = append(owners[id], u.DocumentID)
	}

	missing := expected.Minus(uploaded)
	extra := uploaded.Minus(expected)
	matched := expected.Intersect(uploaded)

	c := &Comparison{
		ExamID:                      examID,
		Expected:                    expected.Tokens(),
		Uploaded:                    uploaded.Tokens(),
		Missing:                     missing.Tokens(),
		Extra:                       extra.Tokens(),
		TotalExpected:               expected.Len(),
		TotalUploaded:               uploaded.Len(),
		Matched:                     matched.Len(),
		DocumentsWithoutExtractedID: withoutID,
		DuplicateUploads:            []Duplicate{},
		MissingBySchool:             bySchool(expected, matched, missing),
	}
	if c.TotalExpected > 0 {
		c.CompletionRate = math.Round(float64(c.Matched)/float64(c.TotalExpected)*10000) / 100
	}

	for _, id := range uploaded.Sorted() {
		if docs := owners[id]; len(docs) > 1 {
			c.DuplicateUploads = append(c.DuplicateUploads, Duplicate{SheetID: sheetid.Encode(id), DocumentIDs: docs})
		}
	}
	return c
}

func bySchool(expected, matched, missing sheetid.Set) []SchoolGap {
	gaps := map[uint]*SchoolGap{}
	get := func(id uint) *SchoolGap {
		g, ok := gaps[id]
		if !ok {
			g = &SchoolGap{SchoolID: id}
			gaps[id] = g
		}
		return g
	}
	for id := range expected {
		get(id.SchoolID).Expected++
	}
	for id := range matched {
		get(id.SchoolID).Uploaded++
	}
	for id := range missing {
		get(id.SchoolID).Missing++
	}

	out := make([]SchoolGap, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SchoolID < out[j].SchoolID })
	return out
}
