package qa

import "strings"

var statusAliases = map[string]Status{
	"unanswered":     StatusUnanswered,
	"open":           StatusUnanswered,
	"new":            StatusUnanswered,
	"obesvarad":      StatusUnanswered,
	"in_progress":    StatusInProgress,
	"in progress":    StatusInProgress,
	"inprogress":     StatusInProgress,
	"pågår":          StatusInProgress,
	"done":           StatusDone,
	"answered":       StatusDone,
	"closed":         StatusDone,
	"klar":           StatusDone,
	"not_applicable": StatusNotApplicable,
	"not applicable": StatusNotApplicable,
	"notapplicable":  StatusNotApplicable,
	"n/a":            StatusNotApplicable,
	"ej aktuell":     StatusNotApplicable,
}

// NormalizeStatus maps a stored or user-supplied status onto one of the four
// known values. Unknown, empty and malformed input resolves to Unanswered.
func NormalizeStatus(raw string) Status {
	if status, ok := ParseStatus(raw); ok {
		return status
	}
	return StatusUnanswered
}

// ParseStatus is the strict variant used for input validation.
func ParseStatus(raw string) (Status, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
	if status, ok := statusAliases[key]; ok {
		return status, true
	}
	status, ok := statusAliases[strings.ReplaceAll(key, "_", " ")]
	return status, ok
}

// Label is the human-facing status text used in the register.
func (s Status) Label() string {
	switch s {
	case StatusInProgress:
		return "In progress"
	case StatusDone:
		return "Done"
	case StatusNotApplicable:
		return "Not applicable"
	default:
		return "Unanswered"
	}
}
