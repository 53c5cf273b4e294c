package scoring

import "github.com/sahilchouksey/icm-reconcile/model"

const (
	DisplayAbsent  = "ABSENT"
	DisplayPending = "PENDING"
)

// IsAbsent reports whether total is the whole-subject absent sentinel
func IsAbsent(total *float64) bool {
	return total != nil && *total == model.AbsentTotal
}

// IsCompleted reports whether total is a real numeric score
func IsCompleted(total *float64) bool {
	return total != nil && *total != model.AbsentTotal
}

// DisplayTotal renders a total for people: the sentinel is never shown as -1
func DisplayTotal(total *float64) string {
	switch {
	case total == nil:
		return DisplayPending
	case IsAbsent(total):
		return DisplayAbsent
	default:
		return formatNumber(*total)
	}
}

// Summary aggregates totals; averages only cover completed scores
type Summary struct {
	Completed int      `json:"completed"`
	Absent    int      `json:"absent"`
	Pending   int      `json:"pending"`
	Sum       float64  `json:"sum"`
	Average   *float64 `json:"average"`
	Highest   *float64 `json:"highest"`
	Lowest    *float64 `json:"lowest"`
}

// Summarize aggregates totals, excluding absent and pending ones from sum and average
func Summarize(totals []*float64) Summary {
	var s Summary
	for _, t := range totals {
		switch {
		case t == nil:
			s.Pending++
		case IsAbsent(t):
			s.Absent++
		default:
			v := *t
			s.Completed++
			s.Sum += v
			if s.Highest == nil || v > *s.Highest {
				s.Highest = &v
			}
			if s.Lowest == nil || v < *s.Lowest {
				s.Lowest = &v
			}
		}
	}
	if s.Completed > 0 {
		avg := round2(s.Sum / float64(s.Completed))
		s.Average = &avg
	}
	s.Sum = round2(s.Sum)
	return s
}
