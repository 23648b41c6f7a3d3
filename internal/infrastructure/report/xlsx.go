// Package report renders quota progress as an XLSX workbook.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"CaseCurator/internal/quota"
)

const (
	cellSheet = "Cells"
	tierSheet = "Tiers"
)

var (
	cellHeader = []any{"Tier", "Code", "Sub-code", "Polarities", "Target", "Current", "Deficit", "Filled %"}
	tierHeader = []any{"Tier", "Target", "Current", "Deficit", "Filled %"}
)

// QuotaWorkbook builds the workbook; the caller closes it.
func QuotaWorkbook(needs quota.Needs, dataset string, generatedAt time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", cellSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(tierSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("style: %w", err)
	}

	if err := writeCells(f, needs, bold); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeTiers(f, needs, dataset, generatedAt, bold); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteQuota streams the workbook to w.
func WriteQuota(w io.Writer, needs quota.Needs, dataset string, generatedAt time.Time) error {
	f, err := QuotaWorkbook(needs, dataset, generatedAt)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeCells(f *excelize.File, needs quota.Needs, headerStyle int) error {
	if err := writeRow(f, cellSheet, 1, cellHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(cellSheet, "A1", "H1", headerStyle); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	for i, n := range needs {
		polarities := make([]string, len(n.Cell.Polarities))
		for j, p := range n.Cell.Polarities {
			polarities[j] = string(p)
		}
		row := []any{
			string(n.Cell.Tier), n.Cell.Code, n.Cell.SubCode, strings.Join(polarities, ", "),
			n.Target, n.Current, n.Deficit(), filled(n.Current, n.Target),
		}
		if err := writeRow(f, cellSheet, i+2, row); err != nil {
			return err
		}
	}
	return f.SetPanes(cellSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeTiers(f *excelize.File, needs quota.Needs, dataset string, generatedAt time.Time, headerStyle int) error {
	if err := writeRow(f, tierSheet, 1, tierHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(tierSheet, "A1", "E1", headerStyle); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	progress := needs.ByTier()
	var target, current, deficit int
	for i, p := range progress {
		if err := writeRow(f, tierSheet, i+2, []any{string(p.Tier), p.Target, p.Current, p.Deficit, filled(p.Current, p.Target)}); err != nil {
			return err
		}
		target += p.Target
		current += p.Current
		deficit += p.Deficit
	}
	next := len(progress) + 2
	if err := writeRow(f, tierSheet, next, []any{"Total", target, current, deficit, filled(current, target)}); err != nil {
		return err
	}
	if dataset == "" {
		dataset = "(all)"
	}
	if err := writeRow(f, tierSheet, next+2, []any{"Dataset", dataset}); err != nil {
		return err
	}
	return writeRow(f, tierSheet, next+3, []any{"Generated", generatedAt.UTC().Format(time.RFC3339)})
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func filled(current, target int) float64 {
	if target <= 0 {
		return 100
	}
	pct := float64(current) / float64(target) * 100
	if pct > 100 {
		pct = 100
	}
	return float64(int(pct*10+0.5)) / 10
}
