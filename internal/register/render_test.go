package register

import (
	"bytes"
	"testing"

	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type workbookView struct {
	Sheets []string
	Rows   [][]string
	Links  map[string]string
}

func readWorkbook(t *testing.T, content []byte) workbookView {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	view := workbookView{Sheets: f.GetSheetList(), Links: map[string]string{}}
	sheet := view.Sheets[0]
	view.Rows, err = f.GetRows(sheet)
	require.NoError(t, err)
	for i := 1; i < len(view.Rows); i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		ok, target, err := f.GetCellHyperLink(sheet, cell)
		require.NoError(t, err)
		if ok {
			view.Links[view.Rows[i][0]] = target
		}
	}
	return view
}

func TestRender_RegisterAndDetailSheets(t *testing.T) {
	layout := BuildLayout([]qa.Record{testRecord(1, qa.StatusDone), testRecord(2, qa.StatusUnanswered)}, LayoutOptions{})
	content, err := Render(layout)
	require.NoError(t, err)

	view := readWorkbook(t, content)
	require.Equal(t, []string{"Register", "FS01", "FS02"}, view.Sheets)
	require.Len(t, view.Rows, 3)
	require.Equal(t, "No.", view.Rows[0][0])
	require.Equal(t, "FS01", view.Rows[1][0])
	require.Equal(t, "Done", view.Rows[1][5])
	require.Equal(t, "'FS01'!A1", view.Links["FS01"])
	require.Equal(t, "'FS02'!A1", view.Links["FS02"])

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()
	question, err := f.GetCellValue("FS01", "B12")
	require.NoError(t, err)
	require.Equal(t, "Which class applies?", question)
	answer, err := f.GetCellValue("FS02", "B13")
	require.NoError(t, err)
	require.Equal(t, NoAnswerText, answer)
	ok, back, err := f.GetCellHyperLink("FS01", "A18")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "'Register'!A1", back)
}

func TestRender_EmptySnapshot(t *testing.T) {
	content, err := Render(BuildLayout(nil, LayoutOptions{}))
	require.NoError(t, err)

	view := readWorkbook(t, content)
	require.Equal(t, []string{"Register"}, view.Sheets)
	require.Len(t, view.Rows, 1)
	require.Len(t, view.Rows[0], len(RegisterColumns))
}

func TestRender_Idempotent(t *testing.T) {
	records := []qa.Record{testRecord(3, qa.StatusInProgress), testRecord(1, qa.StatusDone), testRecord(2, qa.StatusNotApplicable)}

	first, err := Render(BuildLayout(records, LayoutOptions{}))
	require.NoError(t, err)
	second, err := Render(BuildLayout(records, LayoutOptions{}))
	require.NoError(t, err)

	require.Equal(t, BuildLayout(records, LayoutOptions{}), BuildLayout(records, LayoutOptions{}))
	require.Equal(t, readWorkbook(t, first), readWorkbook(t, second))
}
