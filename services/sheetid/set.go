package sheetid

import "sort"

// Set is an unordered collection of sheet ids
type Set map[SheetID]struct{}

// NewSet builds a set from ids
func NewSet(ids ...SheetID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Add(id SheetID) {
	s[id] = struct{}{}
}

func (s Set) Contains(id SheetID) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// Minus returns the ids in s that are not in other
func (s Set) Minus(other Set) Set {
	out := make(Set)
	for id := range s {
		if !other.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Intersect returns the ids present in both sets
func (s Set) Intersect(other Set) Set {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(Set)
	for id := range small {
		if large.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Filter returns the ids for which keep returns true
func (s Set) Filter(keep func(SheetID) bool) Set {
	out := make(Set)
	for id := range s {
		if keep(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted returns ids ordered by exam, school, subject, series, test type, sheet number
func (s Set) Sorted() []SheetID {
	ids := make([]SheetID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return Less(ids[i], ids[j]) })
	return ids
}

// Tokens returns the sorted ids encoded as tokens
func (s Set) Tokens() []string {
	ids := s.Sorted()
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = Encode(id)
	}
	return tokens
}

// Less orders sheet ids field by field
func Less(a, b SheetID) bool {
	if a.ExamID != b.ExamID {
		return a.ExamID < b.ExamID
	}
	if a.SchoolID != b.SchoolID {
		return a.SchoolID < b.SchoolID
	}
	if a.SubjectID != b.SubjectID {
		return a.SubjectID < b.SubjectID
	}
	if a.Series != b.Series {
		return a.Series < b.Series
	}
	if a.TestType != b.TestType {
		return a.TestType < b.TestType
	}
	return a.SheetNumber < b.SheetNumber
}
