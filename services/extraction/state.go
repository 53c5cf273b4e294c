package extraction

import (
	"fmt"

	"github.com/sahilchouksey/icm-reconcile/model"
)

// Event drives a document's extraction status
type Event string

const (
	EventSubmit   Event = "submit"
	EventStart    Event = "start"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
)

// Reduce returns the status that follows current on ev.
// An illegal pair returns current unchanged together with ErrIllegalTransition.
func Reduce(current model.ExtractionStatus, ev Event) (model.ExtractionStatus, error) {
	if current == "" {
		current = model.ExtractionStatusPending
	}

	switch ev {
	case EventSubmit:
		// resubmitting a finished document starts a new job
		if current == model.ExtractionStatusPending || current.IsTerminal() {
			return model.ExtractionStatusQueued, nil
		}
	case EventStart:
		if current == model.ExtractionStatusQueued {
			return model.ExtractionStatusProcessing, nil
		}
	case EventComplete:
		// a poll or callback may never observe processing, so queued can finish directly
		if current.IsInFlight() {
			return model.ExtractionStatusSuccess, nil
		}
	case EventFail:
		if current.IsInFlight() {
			return model.ExtractionStatusError, nil
		}
	}
	return current, fmt.Errorf("%w: %s on %s", model.ErrIllegalTransition, ev, current)
}

// HasOutstandingJobs reports whether any status is still owned by the extraction service
func HasOutstandingJobs(statuses []model.ExtractionStatus) bool {
	for _, s := range statuses {
		if s.IsInFlight() {
			return true
		}
	}
	return false
}

// eventFor maps a status reported by the service onto the event that reaches it
func eventFor(remote model.ExtractionStatus) (Event, bool) {
	switch remote {
	case model.ExtractionStatusProcessing:
		return EventStart, true
	case model.ExtractionStatusSuccess:
		return EventComplete, true
	case model.ExtractionStatusError:
		return EventFail, true
	}
	return "", false
}
