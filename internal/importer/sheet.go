package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/conorfennell/recall/internal/domain"
)

// SheetOptions selects where questions and answers live in a spreadsheet.
// Columns are zero-based.
type SheetOptions struct {
	// Sheet names the xlsx worksheet; the first sheet is used when empty.
	Sheet          string
	QuestionColumn int
	AnswerColumn   int
	SkipHeader     bool
}

// DefaultSheetOptions reads questions from the first column and answers
// from the second, after a header row.
func DefaultSheetOptions() SheetOptions {
	return SheetOptions{QuestionColumn: 0, AnswerColumn: 1, SkipHeader: true}
}

// ImportSpreadsheet adds one card per row of an .xlsx or .csv file. Rows with
// an empty question or answer are skipped.
func (im *Importer) ImportSpreadsheet(ctx context.Context, deckID, path string, opts SheetOptions) (Result, error) {
	if opts.QuestionColumn < 0 || opts.AnswerColumn < 0 || opts.QuestionColumn == opts.AnswerColumn {
		return Result{}, fmt.Errorf("%w: question and answer columns must be distinct and non-negative", domain.ErrInvalidInput)
	}
	if _, err := im.db.FindDeck(ctx, deckID); err != nil {
		return Result{}, err
	}

	var rows [][]string
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path, opts.Sheet)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return Result{}, fmt.Errorf("%w: unsupported spreadsheet type %q", domain.ErrInvalidInput, ext)
	}
	if err != nil {
		return Result{}, err
	}
	if opts.SkipHeader && len(rows) > 0 {
		rows = rows[1:]
	}

	var res Result
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		q, a := cell(row, opts.QuestionColumn), cell(row, opts.AnswerColumn)
		if q == "" || a == "" {
			continue
		}
		res.Parsed++
		_, added, err := im.insert(ctx, deckID, domain.Card{Question: q, Answer: a})
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("row %d: %w", i+1, err))
			continue
		}
		if added {
			res.Added++
		}
	}

	im.log.Info("spreadsheet imported",
		"deck_id", deckID,
		"path", path,
		"parsed_cards", res.Parsed,
		"added", res.Added,
		"errors", len(res.Errors),
	)
	return res, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: %s has no worksheets", domain.ErrInvalidInput, path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
}
