package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	coverageapp "psur-evidence/internal/coverage/application"
	evidence "psur-evidence/internal/evidence/domain"
	ledger "psur-evidence/internal/ledger/domain"
)

const dateLayout = "2006-01-02"

// BuildCoverageXLSX renders a case coverage report with summary, per-type,
// upload and not-applicable sheets.
func BuildCoverageXLSX(cc coverageapp.CaseCoverage) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summary := "summary"
	types := "evidence_types"
	uploads := "uploads"
	na := "not_applicable"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, err
	}
	for _, name := range []string{types, uploads, na} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	_ = f.SetCellValue(summary, "A1", "Evidence Coverage Report")
	setRows(f, summary, 3, [][]any{
		{"Case", cc.Case.ID},
		{"Device", cc.Case.DeviceCode},
		{"Template", cc.Case.TemplateID},
		{"Period", formatPeriod(cc.Case.StartPeriod, cc.Case.EndPeriod)},
		{"Coverage (%)", cc.Report.CoveragePercent},
		{"Ready", cc.Report.Ready},
		{"Total atoms", cc.State.Total()},
		{"Generated", cc.GeneratedAt.Format(time.RFC3339)},
	})

	rows := [][]any{{"Evidence type", "Atoms", "Covered", "Covered by"}}
	for _, pt := range cc.Report.PerType {
		rows = append(rows, []any{string(pt.EvidenceType), pt.AtomCount, pt.Covered, strings.Join(pt.Reasons, ", ")})
	}
	setRows(f, types, 1, rows)

	rows = [][]any{{"Upload", "Evidence type", "Source category", "Rows", "Created", "Duplicates", "Blank", "Uploaded"}}
	for _, u := range cc.Uploads {
		rows = append(rows, []any{u.ID, string(u.EvidenceType), u.SourceCategory, u.RowsReceived, u.AtomsCreated,
			u.DuplicatesSkipped, u.BlankRowsSkipped, u.UploadedAt.Format(time.RFC3339)})
	}
	setRows(f, uploads, 1, rows)

	rows = [][]any{{"Entry", "Evidence types", "Reason", "Period", "Recorded by", "Recorded"}}
	for _, j := range cc.Justifications {
		rows = append(rows, []any{j.ID, joinTypes(j), j.ReasonText(), formatPeriod(j.PeriodStart, j.PeriodEnd),
			j.RecordedBy, j.RecordedAt.Format(time.RFC3339)})
	}
	setRows(f, na, 1, rows)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRows(f *excelize.File, sheet string, firstRow int, rows [][]any) {
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, firstRow+i)
			if err != nil {
				continue
			}
			_ = f.SetCellValue(sheet, cell, value)
		}
	}
}

// BuildJustificationPDF renders the not-applicable ledger of a case for
// audit hand-off.
func BuildJustificationPDF(c *evidence.Case, entries []ledger.Justification) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Not-Applicable Evidence Justifications")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Case: %s", c.ID)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Device: %s", c.DeviceCode)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", formatPeriod(c.StartPeriod, c.EndPeriod)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Entries: %d", len(entries)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(30, 6, "Recorded", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Evidence types", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Period", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Reason", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, j := range entries {
		reason := j.ReasonText()
		if reason == "" {
			reason = "-"
		}
		pdf.CellFormat(30, 6, j.RecordedAt.Format(dateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, tr(joinTypes(j)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, formatPeriod(j.PeriodStart, j.PeriodEnd), "1", 0, "C", false, 0, "")
		pdf.CellFormat(70, 6, tr(truncate(reason, 60)), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinTypes(j ledger.Justification) string {
	parts := make([]string, 0, len(j.EvidenceTypes))
	for _, t := range j.EvidenceTypes {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ", ")
}

func formatPeriod(start, end time.Time) string {
	if start.IsZero() && end.IsZero() {
		return ""
	}
	return start.Format(dateLayout) + " - " + end.Format(dateLayout)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
