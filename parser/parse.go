// Package parser reads delivery rosters and unreachable-party lists from
// xlsx workbooks or CSV files.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	customerrors "bpo-assigner/errors"
	"bpo-assigner/metrics"
	"bpo-assigner/models"
)

const utf8BOM = "\ufeff"

// derived columns are written by the pipeline, so every output carries them.
var derived = []string{models.ColOpportunity, models.ColCloseDate, models.ColStage, models.ColAgent}

// ParseFile reads the roster at path. See Parse.
func ParseFile(path, sheet string) (*models.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		metrics.ParserErrorsTotal.WithLabelValues("read").Inc()
		return nil, eris.Wrapf(err, "parser: open %s", path)
	}
	defer f.Close()
	return Parse(f, filepath.Base(path), sheet)
}

// Parse reads a roster from r. The format is chosen by the extension of
// name: .xlsx/.xlsm workbooks or .csv files. For workbooks, sheet selects
// the sheet to read; empty means the first one. Cells are read raw, so
// date cells arrive as spreadsheet serial numbers.
//
// Header names are matched after trimming whitespace. A missing required
// column is a ConfigError naming the column.
func Parse(r io.Reader, name, sheet string) (*models.Table, error) {
	start := time.Now()
	defer func() {
		metrics.ParserDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	rows, err := readRows(r, name, sheet)
	if err != nil {
		return nil, err
	}

	table, err := buildTable(rows, name)
	if err != nil {
		var cfgErr *customerrors.ConfigError
		switch {
		case errors.Is(err, customerrors.ErrMissingColumn):
			metrics.ParserErrorsTotal.WithLabelValues("missing_column").Inc()
		case errors.As(err, &cfgErr):
			metrics.ParserErrorsTotal.WithLabelValues("empty_sheet").Inc()
		}
		return nil, err
	}
	metrics.ParserRecordsTotal.Add(float64(len(table.Records)))
	return table, nil
}

// ReadSentinelsFile reads the unreachable-party list at path. See ReadSentinels.
func ReadSentinelsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sentinelError(filepath.Base(path), err)
	}
	defer f.Close()
	return ReadSentinels(f, filepath.Base(path))
}

// ReadSentinels returns the party IDs listed under the party column of the
// first sheet (or the CSV). Any failure is a DataError wrapping
// ErrSentinelList: the run continues without the sentinel rule.
func ReadSentinels(r io.Reader, name string) ([]string, error) {
	rows, err := readRows(r, name, "")
	if err != nil {
		return nil, sentinelError(name, err)
	}
	if len(rows) == 0 {
		return nil, sentinelError(name, customerrors.ErrEmptySheet)
	}

	col := -1
	for i, h := range rows[0] {
		if cleanHeader(h) == models.ColParty {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, sentinelError(name, customerrors.Missing(models.ColParty))
	}

	ids := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if id := strings.TrimSpace(cell(row, col)); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func sentinelError(name string, err error) error {
	metrics.DataErrorsTotal.WithLabelValues(models.ColParty).Inc()
	return &customerrors.DataError{
		Column: models.ColParty,
		Value:  name,
		Err:    fmt.Errorf("%w: %s: %v", customerrors.ErrSentinelList, name, err),
	}
}

func readRows(r io.Reader, name, sheet string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return xlsxRows(r, name, sheet)
	case ".csv":
		return csvRows(r, name)
	default:
		metrics.ParserErrorsTotal.WithLabelValues("unsupported").Inc()
		return nil, &customerrors.ConfigError{Field: name, Err: customerrors.ErrUnsupported}
	}
}

func xlsxRows(r io.Reader, name, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		metrics.ParserErrorsTotal.WithLabelValues("read").Inc()
		return nil, eris.Wrapf(err, "parser: open workbook %s", name)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &customerrors.ConfigError{Field: name, Err: customerrors.ErrEmptySheet}
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		metrics.ParserErrorsTotal.WithLabelValues("read").Inc()
		return nil, eris.Wrapf(err, "parser: read sheet %q of %s", sheet, name)
	}
	return rows, nil
}

func csvRows(r io.Reader, name string) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		metrics.ParserErrorsTotal.WithLabelValues("read").Inc()
		return nil, eris.Wrapf(err, "parser: read %s", name)
	}
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte(utf8BOM))))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		metrics.ParserErrorsTotal.WithLabelValues("read").Inc()
		return nil, eris.Wrapf(err, "parser: parse csv %s", name)
	}
	return rows, nil
}

func cleanHeader(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func buildTable(rows [][]string, name string) (*models.Table, error) {
	if len(rows) == 0 || blankRow(rows[0]) {
		return nil, &customerrors.ConfigError{Field: name, Err: customerrors.ErrEmptySheet}
	}

	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		h = cleanHeader(h)
		if _, dup := index[h]; !dup && h != "" {
			index[h] = i
		}
	}
	for _, col := range models.RequiredColumns {
		if _, ok := index[col]; !ok {
			return nil, customerrors.Missing(col)
		}
	}

	col := func(header string) int {
		if i, ok := index[header]; ok {
			return i
		}
		return -1
	}
	// The collection date arrives under either header; the day column wins.
	dateCol := col(models.ColCollectionDay)
	if dateCol < 0 {
		dateCol = col(models.ColCollectionDate)
	}

	table := &models.Table{Columns: make(map[string]bool, len(models.OutputColumns))}
	for _, c := range models.OutputColumns {
		if _, ok := index[c]; ok {
			table.Columns[c] = true
		}
	}
	if dateCol >= 0 {
		table.Columns[models.ColCollectionDate] = true
	}
	for _, c := range derived {
		table.Columns[c] = true
	}

	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		table.Records = append(table.Records, models.Record{
			Row:               i + 2,
			PartyID:           cell(row, col(models.ColParty)),
			DestinationName:   cell(row, col(models.ColName)),
			OrderQuantity:     cell(row, col(models.ColOrderQuantity)),
			DeliveryNbr:       cell(row, col(models.ColDeliveryNbr)),
			Scheme:            cell(row, col(models.ColScheme)),
			Coordinator:       cell(row, col(models.ColCoordinator)),
			HaulierName:       cell(row, col(models.ColHaulier)),
			Executive:         cell(row, col(models.ColExecutive)),
			Reason:            cell(row, col(models.ColReason)),
			CollectionDateRaw: cell(row, dateCol),
		})
	}
	return table, nil
}
