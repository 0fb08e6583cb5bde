package spreadsheet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/pkg/entities"
)

// Headers is the column layout of every group sheet
var Headers = []interface{}{
	"website", "username", "grupo",
	"fecha_actual", "balance_actual",
	"fecha_anterior", "balance_anterior",
	"total_sum_add", "total_sum_withdraw",
	"variacion_esperada", "variacion_real", "diferencia_variacion",
}

const (
	defaultSheet  = "Sheet1"
	maxSheetName  = 31
	fileTimestamp = "20060102_150405"
)

// Exporter writes every result of a batch to an xlsx workbook with one sheet
// per group
type Exporter struct {
	dir string
	log *logging.Logger
}

// NewExporter creates an exporter writing into dir
func NewExporter(dir string, log *logging.Logger) *Exporter {
	if log == nil {
		log = logging.Default
	}
	return &Exporter{dir: dir, log: log}
}

// Name implements reconciliation.Sink
func (e *Exporter) Name() string {
	return "spreadsheet"
}

// Publish implements reconciliation.Sink. A batch without results writes no file.
func (e *Exporter) Publish(ctx context.Context, batch *entities.Batch) error {
	if len(batch.Results) == 0 {
		return nil
	}
	path, err := e.Export(batch)
	if err != nil {
		return err
	}
	e.log.Info("Exported %d results of batch %s to %s", len(batch.Results), batch.ID, path)
	return nil
}

// Export writes the workbook and returns its path
func (e *Exporter) Export(batch *entities.Batch) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	order, byGroup := batch.ResultsByGroup()
	used := make(map[string]bool)
	for i, group := range order {
		sheet := uniqueSheetName(SheetName(group), used)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return "", fmt.Errorf("failed to name sheet %s: %w", sheet, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return "", fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}

		if err := writeSheet(f, sheet, byGroup[group]); err != nil {
			return "", err
		}
	}

	name := fmt.Sprintf("reconciliation_%s_%s.xlsx", batch.FinishedAt.UTC().Format(fileTimestamp), batch.ID)
	path := filepath.Join(e.dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}
	return path, nil
}

func writeSheet(f *excelize.File, sheet string, results []*entities.ReconciliationResult) error {
	headers := Headers
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write headers on %s: %w", sheet, err)
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			r.Platform, r.Account, r.Group,
			r.CurrRecordedAt, nullable(r.CurrBalance),
			r.PrevRecordedAt, nullable(r.PrevBalance),
			r.SumCredit.InexactFloat64(), r.SumDebit.InexactFloat64(),
			r.ExpectedDelta.InexactFloat64(), nullable(r.ObservedDelta), nullable(r.Variance),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d on %s: %w", i+2, sheet, err)
		}
	}
	return nil
}

// SheetName maps a group to a valid worksheet name. The empty group is
// entities.UngroupedLabel.
func SheetName(group string) string {
	name := strings.TrimSpace(group)
	if name == "" {
		name = entities.UngroupedLabel
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)

	runes := []rune(name)
	if len(runes) > maxSheetName {
		name = string(runes[:maxSheetName])
	}
	return name
}

// uniqueSheetName suffixes names that collide after sanitizing
func uniqueSheetName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf("~%d", n)
		runes := []rune(name)
		if len(runes)+len(suffix) > maxSheetName {
			runes = runes[:maxSheetName-len(suffix)]
		}
		candidate = string(runes) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func nullable(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}
