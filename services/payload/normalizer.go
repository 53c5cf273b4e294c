package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// CanonicalScoreRow is one candidate row of an extracted ICM sheet, independent of the
// shape the extraction service returned it in. Absent fields are nil.
type CanonicalScoreRow struct {
	SN            int     `json:"sn"`
	IndexNumber   *string `json:"index_number"`
	CandidateName *string `json:"candidate_name"`
	RawScore      *string `json:"raw_score"`
	AttendMarker  *string `json:"attend_marker,omitempty"`
	VerifyMarker  *string `json:"verify_marker,omitempty"`
}

// Result is the outcome of a shape detector. Matched is false when the shape is not present
// or yields no rows, in which case the next detector is tried.
type Result struct {
	Matched bool
	Shape   string
	Rows    []CanonicalScoreRow
}

var noMatch = Result{}

type detector struct {
	shape  string
	detect func(root map[string]any) Result
}

// detectors are tried in order; the first one that yields rows wins.
// Adding a shape means appending a detector here.
var detectors = []detector{
	{shape: "candidates", detect: candidatesUnder()},
	{shape: "tables", detect: tablesUnder()},
	{shape: "data.candidates", detect: candidatesUnder("data")},
	{shape: "data.tables", detect: tablesUnder("data")},
}

// Field aliases accepted on each row, in lookup order
var (
	indexAliases  = []string{"index_number", "indexNumber"}
	nameAliases   = []string{"candidate_name", "candidateName", "name"}
	scoreAliases  = []string{"raw_score", "rawScore", "score"}
	snAliases     = []string{"sn", "serial_number", "serialNumber", "row_number", "rowNumber"}
	attendAliases = []string{"attend_marker", "attendMarker", "attend", "attendance"}
	verifyAliases = []string{"verify_marker", "verifyMarker", "verify", "verified"}
)

// Normalize converts a raw extraction payload into canonical rows.
// It never fails: unparseable or unrecognised payloads yield an empty slice.
func Normalize(raw []byte) []CanonicalScoreRow {
	return Detect(raw).Rows
}

// Detect runs the shape detectors over a raw payload and reports which shape matched
func Detect(raw []byte) Result {
	if len(bytes.TrimSpace(raw)) == 0 {
		return emptyResult()
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return emptyResult()
	}
	return DetectValue(v)
}

// NormalizeValue is Normalize for an already-decoded JSON value
func NormalizeValue(v any) []CanonicalScoreRow {
	return DetectValue(v).Rows
}

// DetectValue is Detect for an already-decoded JSON value
func DetectValue(v any) Result {
	root, ok := v.(map[string]any)
	if !ok {
		return emptyResult()
	}

	for _, d := range detectors {
		res := d.detect(root)
		if res.Matched && len(res.Rows) > 0 {
			res.Shape = d.shape
			return res
		}
	}
	return emptyResult()
}

// ErrNoRows means a payload did not yield a single canonical row
var ErrNoRows = errors.New("extraction payload has no candidate rows")

// Validate returns ErrNoRows unless the payload yields at least one row
func Validate(raw []byte) error {
	if !HasRows(raw) {
		return ErrNoRows
	}
	return nil
}

// HasRows reports whether the payload yields at least one canonical row
func HasRows(raw []byte) bool {
	return len(Normalize(raw)) > 0
}

func emptyResult() Result {
	return Result{Rows: []CanonicalScoreRow{}}
}

// scope follows an optional chain of object keys from the root
func scope(root map[string]any, path []string) (map[string]any, bool) {
	cur := root
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func candidatesUnder(path ...string) func(map[string]any) Result {
	return func(root map[string]any) Result {
		obj, ok := scope(root, path)
		if !ok {
			return noMatch
		}
		items, ok := obj["candidates"].([]any)
		if !ok {
			return noMatch
		}
		position := 0
		rows := rowsFrom(items, &position)
		return Result{Matched: len(rows) > 0, Rows: rows}
	}
}

func tablesUnder(path ...string) func(map[string]any) Result {
	return func(root map[string]any) Result {
		obj, ok := scope(root, path)
		if !ok {
			return noMatch
		}
		tables, ok := obj["tables"].([]any)
		if !ok {
			return noMatch
		}

		position := 0
		var rows []CanonicalScoreRow
		for _, t := range tables {
			table, ok := t.(map[string]any)
			if !ok {
				continue
			}
			items, ok := table["rows"].([]any)
			if !ok {
				continue
			}
			rows = append(rows, rowsFrom(items, &position)...)
		}
		return Result{Matched: len(rows) > 0, Rows: rows}
	}
}

// rowsFrom converts row objects; position counts every item, including skipped non-objects
func rowsFrom(items []any, position *int) []CanonicalScoreRow {
	rows := make([]CanonicalScoreRow, 0, len(items))
	for _, item := range items {
		*position++
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, rowFrom(obj, *position))
	}
	return rows
}

func rowFrom(obj map[string]any, position int) CanonicalScoreRow {
	sn, ok := intField(obj, snAliases)
	if !ok {
		sn = position
	}
	return CanonicalScoreRow{
		SN:            sn,
		IndexNumber:   stringField(obj, indexAliases),
		CandidateName: stringField(obj, nameAliases),
		RawScore:      stringField(obj, scoreAliases),
		AttendMarker:  stringField(obj, attendAliases),
		VerifyMarker:  stringField(obj, verifyAliases),
	}
}

// stringField returns the first alias holding a usable scalar value
func stringField(obj map[string]any, aliases []string) *string {
	for _, key := range aliases {
		v, present := obj[key]
		if !present {
			continue
		}
		if s, ok := scalarString(v); ok {
			return &s
		}
	}
	return nil
}

func intField(obj map[string]any, aliases []string) (int, bool) {
	s := stringField(obj, aliases)
	if s == nil {
		return 0, false
	}
	if n, err := strconv.Atoi(*s); err == nil && n > 0 {
		return n, true
	}
	if f, err := strconv.ParseFloat(*s, 64); err == nil && f > 0 && f == math.Trunc(f) && f <= math.MaxInt32 {
		return int(f), true
	}
	return 0, false
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		if f, err := val.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		// null, nested objects and arrays are not usable field values
		return "", false
	}
}
