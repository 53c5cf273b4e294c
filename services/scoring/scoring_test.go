package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
)

func f(v float64) *float64 { return &v }
func s(v string) *string   { return &v }

func TestParseRaw(t *testing.T) {
	tests := []struct {
		name   string
		raw    *string
		attend *string
		kind   Kind
		value  float64
	}{
		{"number", s("78"), nil, KindPresent, 78},
		{"padded decimal", s(" 35.5 "), nil, KindPresent, 35.5},
		{"absent A", s("A"), nil, KindAbsent, 0},
		{"absent lower aa", s("aa"), nil, KindAbsent, 0},
		{"blank with absent marker", s(" "), s("ABS"), KindAbsent, 0},
		{"nil with absent marker", nil, s("a"), KindAbsent, 0},
		{"blank with present marker", s(""), s("P"), KindPending, 0},
		{"nil", nil, nil, KindPending, 0},
		{"text", s("seventy"), nil, KindInvalid, 0},
		{"nan", s("NaN"), nil, KindInvalid, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParseRaw(tt.raw, tt.attend)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.value, p.Value)
		})
	}
}

func objOnly() Config {
	return Config{
		Obj: Component{MaxScore: f(40)},
		Grades: []model.GradeRange{
			{MinScore: 80, MaxScore: 100, Grade: "A1"},
			{MinScore: 0, MaxScore: 79.99, Grade: "B2"},
		},
	}
}

func TestApplyComponentObjectiveOnly(t *testing.T) {
	reg := &model.SubjectRegistration{}
	require.NoError(t, ApplyComponent(reg, objOnly(), sheetid.TestTypeObjectives, ParseRaw(s("36"), nil)))

	require.NotNil(t, reg.ObjRawScore)
	assert.Equal(t, 36.0, *reg.ObjRawScore)
	assert.Equal(t, 90.0, *reg.ObjNormalized)
	require.NotNil(t, reg.TotalScore)
	assert.Equal(t, 90.0, *reg.TotalScore)
	require.NotNil(t, reg.Grade)
	assert.Equal(t, "A1", *reg.Grade)
}

func TestApplyComponentRejectsOutOfRange(t *testing.T) {
	cfg := objOnly()
	for _, raw := range []string{"41", "-1", "x"} {
		reg := &model.SubjectRegistration{}
		err := ApplyComponent(reg, cfg, sheetid.TestTypeObjectives, ParseRaw(s(raw), nil))
		assert.ErrorIs(t, err, ErrInvalidScore, raw)
		assert.Nil(t, reg.ObjRawScore)
		assert.Nil(t, reg.TotalScore)
	}

	reg := &model.SubjectRegistration{}
	err := ApplyComponent(reg, cfg, sheetid.TestTypeEssay, ParseRaw(s("10"), nil))
	assert.ErrorIs(t, err, ErrInvalidScore)

	err = ApplyComponent(reg, cfg, sheetid.TestTypeObjectives, ParseRaw(nil, nil))
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestTotalStaysPendingUntilEveryPaperIsIn(t *testing.T) {
	cfg := Config{
		Obj:   Component{MaxScore: f(40)},
		Essay: Component{MaxScore: f(60)},
	}
	reg := &model.SubjectRegistration{}

	require.NoError(t, ApplyComponent(reg, cfg, sheetid.TestTypeObjectives, ParseRaw(s("20"), nil)))
	assert.Equal(t, 25.0, *reg.ObjNormalized)
	assert.Nil(t, reg.TotalScore)

	require.NoError(t, ApplyComponent(reg, cfg, sheetid.TestTypeEssay, ParseRaw(s("30"), nil)))
	require.NotNil(t, reg.TotalScore)
	assert.Equal(t, 50.0, *reg.TotalScore)
}

func TestWeightsFromConfiguration(t *testing.T) {
	cfg := Config{
		Obj:   Component{MaxScore: f(50), Pct: f(40)},
		Essay: Component{MaxScore: f(100), Pct: f(60)},
	}
	assert.Equal(t, 20.0, cfg.Normalize(sheetid.TestTypeObjectives, 25))
	assert.Equal(t, 45.0, cfg.Normalize(sheetid.TestTypeEssay, 75))
	assert.Equal(t, []sheetid.TestType{sheetid.TestTypeObjectives, sheetid.TestTypeEssay}, cfg.TestTypes())
}

func TestAbsentSentinel(t *testing.T) {
	cfg := Config{
		Obj:   Component{MaxScore: f(40)},
		Essay: Component{MaxScore: f(60)},
	}

	t.Run("all papers absent", func(t *testing.T) {
		reg := &model.SubjectRegistration{}
		require.NoError(t, ApplyComponent(reg, cfg, sheetid.TestTypeObjectives, ParseRaw(s("A"), nil)))
		require.NoError(t, ApplyComponent(reg, cfg, sheetid.TestTypeEssay, ParseRaw(s("AA"), nil)))

		assert.True(t, reg.ObjAbsent)
		assert.Nil(t, reg.ObjRawScore)
		assert.Nil(t, reg.ObjNormalized)
		assert.True(t, reg.IsAbsent())
		assert.Equal(t, model.AbsentTotal, *reg.TotalScore)
		assert.Nil(t, reg.Grade)
	})

	t.Run("one paper absent", func(t *testing.T) {
		reg := &model.SubjectRegistration{}
		require.NoError(t, ApplyComponent(reg, cfg, sheetid.TestTypeObjectives, ParseRaw(s("A"), nil)))
		require.NoError(t, ApplyComponent(reg, cfg, sheetid.TestTypeEssay, ParseRaw(s("60"), nil)))

		assert.False(t, reg.IsAbsent())
		assert.Equal(t, 50.0, *reg.TotalScore)
	})

	t.Run("score replaced by absence", func(t *testing.T) {
		reg := &model.SubjectRegistration{}
		require.NoError(t, ApplyComponent(reg, cfg, sheetid.TestTypeObjectives, ParseRaw(s("40"), nil)))
		require.NoError(t, ApplyComponent(reg, cfg, sheetid.TestTypeObjectives, ParseRaw(s("A"), nil)))
		assert.Nil(t, reg.ObjRawScore)
		assert.True(t, reg.ObjAbsent)
	})
}

func TestGradeFollowsNewTotal(t *testing.T) {
	cfg := Config{
		Obj:    Component{MaxScore: f(40)},
		Essay:  Component{MaxScore: f(60)},
		Grades: []model.GradeRange{{MinScore: 90, MaxScore: 100, Grade: "A1"}},
	}

	t.Run("no range covers the total", func(t *testing.T) {
		reg := &model.SubjectRegistration{Grade: s("C4"), EssayAbsent: true}
		require.NoError(t, ApplyComponent(reg, cfg, sheetid.TestTypeObjectives, ParseRaw(s("10"), nil)))
		assert.Equal(t, 12.5, *reg.TotalScore)
		assert.Nil(t, reg.Grade)
	})

	t.Run("total becomes absent", func(t *testing.T) {
		reg := &model.SubjectRegistration{Grade: s("A1"), EssayAbsent: true}
		require.NoError(t, ApplyComponent(reg, cfg, sheetid.TestTypeObjectives, ParseRaw(s("A"), nil)))
		assert.Equal(t, model.AbsentTotal, *reg.TotalScore)
		assert.Nil(t, reg.Grade)
	})

	t.Run("pending total keeps grade", func(t *testing.T) {
		reg := &model.SubjectRegistration{Grade: s("C4")}
		require.NoError(t, ApplyComponent(reg, cfg, sheetid.TestTypeObjectives, ParseRaw(s("10"), nil)))
		assert.Nil(t, reg.TotalScore)
		assert.Equal(t, "C4", *reg.Grade)
	})
}

func TestDisplayTotal(t *testing.T) {
	assert.Equal(t, "PENDING", DisplayTotal(nil))
	assert.Equal(t, "ABSENT", DisplayTotal(f(-1)))
	assert.Equal(t, "72.5", DisplayTotal(f(72.5)))
	assert.Equal(t, "0", DisplayTotal(f(0)))
}

func TestSummarizeExcludesAbsentAndPending(t *testing.T) {
	sum := Summarize([]*float64{f(80), f(-1), nil, f(60), f(-1)})

	assert.Equal(t, 2, sum.Completed)
	assert.Equal(t, 2, sum.Absent)
	assert.Equal(t, 1, sum.Pending)
	assert.Equal(t, 140.0, sum.Sum)
	require.NotNil(t, sum.Average)
	assert.Equal(t, 70.0, *sum.Average)
	assert.Equal(t, 80.0, *sum.Highest)
	assert.Equal(t, 60.0, *sum.Lowest)

	empty := Summarize([]*float64{f(-1), nil})
	assert.Nil(t, empty.Average)
	assert.Zero(t, empty.Sum)
}
