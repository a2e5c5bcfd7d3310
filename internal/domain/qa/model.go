package qa

import "time"

// Status is the answer state of a Q&A record.
type Status string

const (
	StatusUnanswered    Status = "unanswered"
	StatusInProgress    Status = "in_progress"
	StatusDone          Status = "done"
	StatusNotApplicable Status = "not_applicable"
)

// Answer is one entry of a record's append-only answer history.
type Answer struct {
	Text           string    `json:"text"`
	AnsweredAt     time.Time `json:"answered_at"`
	AnsweredByName string    `json:"answered_by_name"`
}

// Record is a single question in a project's Q&A register.
//
// SequenceNumber is assigned once from the project's counter and never reused,
// so FormattedNumber stays a valid register reference for the record's whole
// life, including after other records are deleted.
type Record struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenant_id"`
	ProjectID          string     `json:"project_id"`
	SequenceNumber     int64      `json:"sequence_number"`
	FormattedNumber    string     `json:"formatted_number"`
	Title              string     `json:"title"`
	Category           string     `json:"category,omitempty"`
	Discipline         string     `json:"discipline,omitempty"`
	ResponsibleParties []string   `json:"responsible_parties,omitempty"`
	Question           string     `json:"question"`
	Status             Status     `json:"status"`
	AnswerHistory      []Answer   `json:"answer_history,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CreatedBy          string     `json:"created_by,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
	UpdatedBy          string     `json:"updated_by,omitempty"`
	DueDate            *time.Time `json:"due_date,omitempty"`
	Deleted            bool       `json:"deleted,omitempty"`
}

// LatestAnswer returns the most recent answer, if any.
func (r *Record) LatestAnswer() (Answer, bool) {
	if len(r.AnswerHistory) == 0 {
		return Answer{}, false
	}
	return r.AnswerHistory[len(r.AnswerHistory)-1], true
}

// RecordRef is a lightweight reference to a record
type RecordRef struct {
	ID              string `json:"id"`
	SequenceNumber  int64  `json:"sequence_number"`
	FormattedNumber string `json:"formatted_number"`
	Title           string `json:"title"`
	Category        string `json:"category,omitempty"`
	Status          Status `json:"status"`
}

// SearchResult represents a search hit with relevance
type SearchResult struct {
	Record  RecordRef `json:"record"`
	Rank    float64   `json:"rank"`
	Snippet string    `json:"snippet,omitempty"`
}
