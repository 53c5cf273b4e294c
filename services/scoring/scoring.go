package scoring

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
)

// ErrInvalidScore means a raw score cannot be written to a registration
var ErrInvalidScore = errors.New("invalid raw score")

// Kind classifies a raw score cell
type Kind int

const (
	KindPending Kind = iota // blank cell
	KindPresent             // numeric score
	KindAbsent              // absence marker
	KindInvalid             // anything else
)

// Parsed is a classified raw score
type Parsed struct {
	Kind  Kind
	Value float64
	Raw   string
}

var (
	absentScoreMarkers  = map[string]bool{"A": true, "AA": true}
	absentAttendMarkers = map[string]bool{"A": true, "AA": true, "ABS": true, "ABSENT": true}
)

// ParseRaw classifies a raw score cell. "A" and "AA" mark absence; a blank score whose
// attendance marker says absent is also absent.
func ParseRaw(raw, attend *string) Parsed {
	s := ""
	if raw != nil {
		s = strings.TrimSpace(*raw)
	}

	if s == "" {
		if attend != nil && absentAttendMarkers[strings.ToUpper(strings.TrimSpace(*attend))] {
			return Parsed{Kind: KindAbsent}
		}
		return Parsed{Kind: KindPending}
	}
	if absentScoreMarkers[strings.ToUpper(s)] {
		return Parsed{Kind: KindAbsent, Raw: s}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Parsed{Kind: KindInvalid, Raw: s}
	}
	return Parsed{Kind: KindPresent, Value: v, Raw: s}
}

// Component is the configuration of one paper
type Component struct {
	MaxScore *float64
	Pct      *float64
}

// Config is the scoring configuration of a subject within an exam
type Config struct {
	Obj    Component
	Essay  Component
	Pract  Component
	Grades []model.GradeRange
}

// ConfigFromExamSubject builds a scoring config from the stored exam-subject row
func ConfigFromExamSubject(es *model.ExamSubject) Config {
	return Config{
		Obj:    Component{MaxScore: es.ObjMaxScore, Pct: es.ObjPct},
		Essay:  Component{MaxScore: es.EssayMaxScore, Pct: es.EssayPct},
		Pract:  Component{MaxScore: es.PractMaxScore, Pct: es.PractPct},
		Grades: es.GradeRanges,
	}
}

// Component returns the configuration of a test type
func (c Config) Component(tt sheetid.TestType) Component {
	switch tt {
	case sheetid.TestTypeObjectives:
		return c.Obj
	case sheetid.TestTypeEssay:
		return c.Essay
	case sheetid.TestTypePracticals:
		return c.Pract
	}
	return Component{}
}

// Configured reports whether a paper is written for this subject (its max score is set)
func (c Config) Configured(tt sheetid.TestType) bool {
	return c.Component(tt).MaxScore != nil
}

// TestTypes lists the configured test types in canonical order
func (c Config) TestTypes() []sheetid.TestType {
	var out []sheetid.TestType
	for _, tt := range sheetid.AllTestTypes {
		if c.Configured(tt) {
			out = append(out, tt)
		}
	}
	return out
}

// weight is the configured percentage, or an equal share of 100 when unset
func (c Config) weight(tt sheetid.TestType) float64 {
	if p := c.Component(tt).Pct; p != nil {
		return *p
	}
	n := len(c.TestTypes())
	if n == 0 {
		return 0
	}
	return 100 / float64(n)
}

// Normalize converts a raw score to its weighted contribution to the total
func (c Config) Normalize(tt sheetid.TestType, raw float64) float64 {
	max := c.Component(tt).MaxScore
	if max == nil || *max <= 0 {
		return 0
	}
	return round2(raw / *max * c.weight(tt))
}

// GradeFor returns the grade whose range covers total
func (c Config) GradeFor(total float64) (string, bool) {
	for _, g := range c.Grades {
		if total >= g.MinScore && total <= g.MaxScore {
			return g.Grade, true
		}
	}
	return "", false
}

// ApplyComponent writes one paper's score onto a registration and recomputes its total.
// Absent papers get nil raw/normalized values and the absent flag.
func ApplyComponent(reg *model.SubjectRegistration, cfg Config, tt sheetid.TestType, parsed Parsed) error {
	comp := cfg.Component(tt)
	if comp.MaxScore == nil {
		return fmt.Errorf("%w: %s paper is not configured for this subject", ErrInvalidScore, tt)
	}

	var raw, normalized *float64
	absent := false
	switch parsed.Kind {
	case KindAbsent:
		absent = true
	case KindPresent:
		if parsed.Value < 0 || parsed.Value > *comp.MaxScore {
			return fmt.Errorf("%w: %s outside 0..%s", ErrInvalidScore, parsed.Raw, formatNumber(*comp.MaxScore))
		}
		v := parsed.Value
		n := cfg.Normalize(tt, v)
		raw, normalized = &v, &n
	case KindPending:
		return fmt.Errorf("%w: no score on row", ErrInvalidScore)
	default:
		return fmt.Errorf("%w: %q is not a number", ErrInvalidScore, parsed.Raw)
	}

	switch tt {
	case sheetid.TestTypeObjectives:
		reg.ObjRawScore, reg.ObjNormalized, reg.ObjAbsent = raw, normalized, absent
	case sheetid.TestTypeEssay:
		reg.EssayRawScore, reg.EssayNormalized, reg.EssayAbsent = raw, normalized, absent
	case sheetid.TestTypePracticals:
		reg.PractRawScore, reg.PractNormalized, reg.PractAbsent = raw, normalized, absent
	}

	Recompute(reg, cfg)
	return nil
}

// Recompute derives total and grade from the components.
// The total stays nil while any configured paper is pending, becomes the absent sentinel
// when every configured paper is absent, and otherwise sums the present papers.
// The grade follows a newly computed total: it is cleared for the absent sentinel or
// a total no range covers, and left alone while the total is pending.
func Recompute(reg *model.SubjectRegistration, cfg Config) {
	types := cfg.TestTypes()
	if len(types) == 0 {
		return
	}

	sum := 0.0
	absentCount := 0
	for _, tt := range types {
		normalized, absent := componentOf(reg, tt)
		switch {
		case absent:
			absentCount++
		case normalized == nil:
			return
		default:
			sum += *normalized
		}
	}

	if absentCount == len(types) {
		total := model.AbsentTotal
		reg.TotalScore = &total
		reg.Grade = nil
		return
	}

	total := round2(sum)
	reg.TotalScore = &total
	reg.Grade = nil
	if grade, ok := cfg.GradeFor(total); ok {
		reg.Grade = &grade
	}
}

func componentOf(reg *model.SubjectRegistration, tt sheetid.TestType) (*float64, bool) {
	switch tt {
	case sheetid.TestTypeObjectives:
		return reg.ObjNormalized, reg.ObjAbsent
	case sheetid.TestTypeEssay:
		return reg.EssayNormalized, reg.EssayAbsent
	case sheetid.TestTypePracticals:
		return reg.PractNormalized, reg.PractAbsent
	}
	return nil, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
