package expectation

// SheetRule decides how many sheets a roll of candidates needs
type SheetRule struct {
	SeriesCount        int
	CandidatesPerSheet int
}

// Normalized replaces non-positive values with defaults (1 series, the given per-sheet size)
func (r SheetRule) Normalized(defaultPerSheet int) SheetRule {
	if r.SeriesCount < 1 {
		r.SeriesCount = 1
	}
	if r.CandidatesPerSheet < 1 {
		r.CandidatesPerSheet = defaultPerSheet
	}
	if r.CandidatesPerSheet < 1 {
		r.CandidatesPerSheet = DefaultCandidatesPerSheet
	}
	return r
}

// DefaultCandidatesPerSheet is used when neither the exam nor the configuration sets a size
const DefaultCandidatesPerSheet = 20

// SeriesSizes splits a roll round-robin across the series. Index 0 is series 1.
func (r SheetRule) SeriesSizes(roll int) []int {
	if r.SeriesCount < 1 || roll <= 0 {
		return nil
	}
	sizes := make([]int, r.SeriesCount)
	for s := 1; s <= r.SeriesCount; s++ {
		n := roll / r.SeriesCount
		if s <= roll%r.SeriesCount {
			n++
		}
		sizes[s-1] = n
	}
	return sizes
}

// SheetsFor returns how many sheets n candidates fill
func (r SheetRule) SheetsFor(n int) int {
	if n <= 0 || r.CandidatesPerSheet < 1 {
		return 0
	}
	return (n + r.CandidatesPerSheet - 1) / r.CandidatesPerSheet
}
