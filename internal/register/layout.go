package register

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultSheetName = "Register"

	// MaxSheetNameLen is the sheet name limit of the xlsx format.
	MaxSheetNameLen = 31

	// NoAnswerText is shown for records with an empty answer history.
	NoAnswerText = "No answer yet"

	dateLayout = "2006-01-02"
)

// StatusColors maps every status to its row fill.
var StatusColors = map[qa.Status]string{
	qa.StatusUnanswered:    "#F8CBAD",
	qa.StatusInProgress:    "#FFE699",
	qa.StatusDone:          "#C6EFCE",
	qa.StatusNotApplicable: "#D9D9D9",
}

// StatusColor returns the fill for a status, normalising unknown values.
func StatusColor(s qa.Status) string {
	return StatusColors[qa.NormalizeStatus(string(s))]
}

// RegisterColumns are the fixed columns of the register sheet.
var RegisterColumns = []Column{
	{Title: "No.", Width: 10},
	{Title: "Category", Width: 18},
	{Title: "Title", Width: 40},
	{Title: "Discipline", Width: 16},
	{Title: "Responsible", Width: 24},
	{Title: "Status", Width: 16},
	{Title: "Created", Width: 12},
	{Title: "Due date", Width: 12},
	{Title: "Last updated", Width: 14},
	{Title: "Updated by", Width: 20},
}

// Column is a register column header with its width.
type Column struct {
	Title string
	Width float64
}

// LayoutOptions controls BuildLayout.
type LayoutOptions struct {
	SheetName string
	Location  *time.Location
}

// Layout is the logical content of a register workbook. Rendering it is
// deterministic, so two layouts that compare equal produce equivalent workbooks.
type Layout struct {
	SheetName string
	Columns   []Column
	Rows      []RegisterRow
	Details   []DetailSheet
}

// RegisterRow is one record's row on the register sheet.
type RegisterRow struct {
	RecordID string
	Number   string
	Cells    []string
	Status   qa.Status
	Color    string
	// DetailSheet is the sheet the number links to. It is empty when the
	// sanitized name collided with an earlier sheet.
	DetailSheet string
}

// DetailSheet is the key/value page of a single record.
type DetailSheet struct {
	Name     string
	RecordID string
	Status   qa.Status
	Color    string
	Fields   []Field
}

// Field is one label/value line of a detail sheet.
type Field struct {
	Label string
	Value string
}

// FilterRange is the autofilter reference covering header and rows.
func (l Layout) FilterRange() string {
	last, err := excelize.CoordinatesToCellName(max(len(l.Columns), 1), len(l.Rows)+1)
	if err != nil {
		return "A1"
	}
	return "A1:" + last
}

// BuildLayout turns a record snapshot into a Layout. Deleted records are
// dropped and rows are ordered by sequence number.
func BuildLayout(records []qa.Record, opts LayoutOptions) Layout {
	sheet := SanitizeSheetName(opts.SheetName)
	if sheet == "" {
		sheet = DefaultSheetName
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	live := make([]qa.Record, 0, len(records))
	for _, rec := range records {
		if !rec.Deleted {
			live = append(live, rec)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].SequenceNumber < live[j].SequenceNumber
	})

	layout := Layout{
		SheetName: sheet,
		Columns:   RegisterColumns,
		Rows:      make([]RegisterRow, 0, len(live)),
	}
	used := map[string]struct{}{strings.ToLower(sheet): {}}

	for _, rec := range live {
		status := qa.NormalizeStatus(string(rec.Status))
		color := StatusColors[status]

		row := RegisterRow{
			RecordID: rec.ID,
			Number:   rec.FormattedNumber,
			Status:   status,
			Color:    color,
			Cells: []string{
				rec.FormattedNumber,
				rec.Category,
				rec.Title,
				rec.Discipline,
				strings.Join(rec.ResponsibleParties, ", "),
				status.Label(),
				formatDate(rec.CreatedAt, loc),
				formatDatePtr(rec.DueDate, loc),
				formatDate(rec.UpdatedAt, loc),
				rec.UpdatedBy,
			},
		}

		name := SanitizeSheetName(rec.FormattedNumber)
		if _, taken := used[strings.ToLower(name)]; name != "" && !taken {
			used[strings.ToLower(name)] = struct{}{}
			row.DetailSheet = name
			layout.Details = append(layout.Details, DetailSheet{
				Name:     name,
				RecordID: rec.ID,
				Status:   status,
				Color:    color,
				Fields:   detailFields(rec, status, loc),
			})
		}
		layout.Rows = append(layout.Rows, row)
	}
	return layout
}

func detailFields(rec qa.Record, status qa.Status, loc *time.Location) []Field {
	answer := NoAnswerText
	var answeredBy, answeredAt string
	earlier := 0
	if latest, ok := rec.LatestAnswer(); ok {
		answer = latest.Text
		answeredBy = latest.AnsweredByName
		answeredAt = formatDate(latest.AnsweredAt, loc)
		earlier = len(rec.AnswerHistory) - 1
	}
	return []Field{
		{Label: "Number", Value: rec.FormattedNumber},
		{Label: "Title", Value: rec.Title},
		{Label: "Category", Value: rec.Category},
		{Label: "Discipline", Value: rec.Discipline},
		{Label: "Responsible", Value: strings.Join(rec.ResponsibleParties, ", ")},
		{Label: "Status", Value: status.Label()},
		{Label: "Created", Value: formatDate(rec.CreatedAt, loc)},
		{Label: "Created by", Value: rec.CreatedBy},
		{Label: "Due date", Value: formatDatePtr(rec.DueDate, loc)},
		{Label: "Last updated", Value: formatDate(rec.UpdatedAt, loc)},
		{Label: "Updated by", Value: rec.UpdatedBy},
		{Label: "Question", Value: rec.Question},
		{Label: "Answer", Value: answer},
		{Label: "Answered by", Value: answeredBy},
		{Label: "Answered", Value: answeredAt},
		{Label: "Earlier answers", Value: strconv.Itoa(earlier)},
	}
}

// SanitizeSheetName makes s a legal sheet name: forbidden characters are
// replaced, surrounding apostrophes and spaces trimmed and the result cut to
// MaxSheetNameLen runes.
func SanitizeSheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
	s = strings.Trim(s, "' ")
	if runes := []rune(s); len(runes) > MaxSheetNameLen {
		s = strings.TrimRight(string(runes[:MaxSheetNameLen]), "' ")
	}
	return s
}

func formatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(dateLayout)
}

func formatDatePtr(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return formatDate(*t, loc)
}
