package register

import (
	"strings"
	"testing"

	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/stretchr/testify/require"
)

func TestBuildLayout_Scenario(t *testing.T) {
	fs02 := testRecord(2, qa.StatusUnanswered)
	fs01 := testRecord(1, qa.StatusDone)

	layout := BuildLayout([]qa.Record{fs02, fs01}, LayoutOptions{})
	require.Equal(t, DefaultSheetName, layout.SheetName)
	require.Len(t, layout.Rows, 2)

	require.Equal(t, "FS01", layout.Rows[0].Number)
	require.Equal(t, "FS01", layout.Rows[0].DetailSheet)
	require.Equal(t, StatusColors[qa.StatusDone], layout.Rows[0].Color)
	require.Equal(t, "Done", layout.Rows[0].Cells[5])

	require.Equal(t, "FS02", layout.Rows[1].Number)
	require.Equal(t, StatusColors[qa.StatusUnanswered], layout.Rows[1].Color)

	require.Len(t, layout.Details, 2)
	require.Equal(t, "FS01", layout.Details[0].Name)
	require.Equal(t, "A1:J3", layout.FilterRange())

	fs01.Deleted = true
	layout = BuildLayout([]qa.Record{fs01, fs02}, LayoutOptions{})
	require.Len(t, layout.Rows, 1)
	require.Equal(t, "FS02", layout.Rows[0].Number)
	require.Len(t, layout.Details, 1)
}

func TestBuildLayout_EmptyIsHeaderOnly(t *testing.T) {
	layout := BuildLayout(nil, LayoutOptions{SheetName: "Frågor"})
	require.Equal(t, "Frågor", layout.SheetName)
	require.Empty(t, layout.Rows)
	require.Empty(t, layout.Details)
	require.Len(t, layout.Columns, 10)
	require.Equal(t, "A1:J1", layout.FilterRange())
}

func TestBuildLayout_MalformedStatusIsUnanswered(t *testing.T) {
	rec := testRecord(1, qa.Status("???"))
	layout := BuildLayout([]qa.Record{rec}, LayoutOptions{})
	require.Equal(t, qa.StatusUnanswered, layout.Rows[0].Status)
	require.Equal(t, StatusColors[qa.StatusUnanswered], layout.Rows[0].Color)
	require.Equal(t, StatusColors[qa.StatusUnanswered], StatusColor("???"))
}

func TestBuildLayout_NoAnswerYet(t *testing.T) {
	rec := testRecord(1, qa.StatusUnanswered)
	layout := BuildLayout([]qa.Record{rec}, LayoutOptions{})
	require.Equal(t, NoAnswerText, fieldValue(layout.Details[0], "Answer"))
	require.Equal(t, "0", fieldValue(layout.Details[0], "Earlier answers"))

	rec.AnswerHistory = []qa.Answer{{Text: "first"}, {Text: "second", AnsweredByName: "Bob"}}
	layout = BuildLayout([]qa.Record{rec}, LayoutOptions{})
	require.Equal(t, "second", fieldValue(layout.Details[0], "Answer"))
	require.Equal(t, "Bob", fieldValue(layout.Details[0], "Answered by"))
	require.Equal(t, "1", fieldValue(layout.Details[0], "Earlier answers"))
}

func TestBuildLayout_SheetNameCollisionsSkipLink(t *testing.T) {
	a := testRecord(1, qa.StatusDone)
	a.FormattedNumber = "A/1"
	b := testRecord(2, qa.StatusDone)
	b.FormattedNumber = "a:1"
	c := testRecord(3, qa.StatusDone)
	c.FormattedNumber = "register"

	layout := BuildLayout([]qa.Record{a, b, c}, LayoutOptions{})
	require.Len(t, layout.Rows, 3, "every record keeps its register row")
	require.Equal(t, "A_1", layout.Rows[0].DetailSheet)
	require.Empty(t, layout.Rows[1].DetailSheet, "case-insensitive collision must not share a sheet")
	require.Empty(t, layout.Rows[2].DetailSheet, "register sheet name is reserved")
	require.Len(t, layout.Details, 1)
	require.Equal(t, "rec-1", layout.Details[0].RecordID)
}

func TestSanitizeSheetName(t *testing.T) {
	require.Equal(t, "FS01", SanitizeSheetName("FS01"))
	require.Equal(t, "a_b_c_d_e_f_g", SanitizeSheetName("a:b\\c/d?e*f[g"))
	require.Equal(t, "quoted", SanitizeSheetName("'quoted' "))
	long := strings.Repeat("x", 40)
	require.Len(t, SanitizeSheetName(long), MaxSheetNameLen)
	require.Equal(t, "", SanitizeSheetName("  "))
}

func fieldValue(d DetailSheet, label string) string {
	for _, f := range d.Fields {
		if f.Label == label {
			return f.Value
		}
	}
	return ""
}
