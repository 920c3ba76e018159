package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"github.com/zeebo/xxh3"

	"bpo-assigner/models"
)

// DefaultSheet is the sheet name of the processed workbook.
const DefaultSheet = "Hoja1"

// Artifact is one downloadable rendering of the processed table.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
	// Digest is the hex xxh3 hash of Data.
	Digest string
}

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv; charset=utf-8"
)

func newArtifact(name, contentType string, data []byte) Artifact {
	return Artifact{
		Name:        name,
		ContentType: contentType,
		Data:        data,
		Digest:      fmt.Sprintf("%016x", xxh3.Hash(data)),
	}
}

// FileName returns prefix_dd-mm-yyyy.ext.
func FileName(prefix string, runDate time.Time, ext string) string {
	return fmt.Sprintf("%s_%s.%s", prefix, runDate.Format("02-01-2006"), ext)
}

// Rows renders the processed records as a header row followed by one row
// per record, in the fixed output column order. Columns the input did not
// carry are left out.
func Rows(records []models.Record, table *models.Table) [][]string {
	var columns []string
	for _, c := range models.OutputColumns {
		if table == nil || table.HasColumn(c) {
			columns = append(columns, c)
		}
	}

	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, columns)
	for _, r := range records {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = value(r, c)
		}
		rows = append(rows, row)
	}
	return rows
}

func value(r models.Record, column string) string {
	switch column {
	case models.ColParty:
		return r.PartyID
	case models.ColName:
		return r.DestinationName
	case models.ColOrderQuantity:
		return r.OrderQuantity
	case models.ColDeliveryNbr:
		return r.DeliveryNbr
	case models.ColScheme:
		return r.Scheme
	case models.ColCoordinator:
		return r.Coordinator
	case models.ColHaulier:
		return r.HaulierName
	case models.ColExecutive:
		return r.Executive
	case models.ColReason:
		return r.Reason
	case models.ColCollectionDate:
		return r.CollectionDate
	case models.ColOpportunity:
		return r.OpportunityName
	case models.ColCloseDate:
		return r.CloseDate
	case models.ColStage:
		return r.Stage
	case models.ColAgent:
		return r.AssignedAgent
	}
	return ""
}

// WriteXLSX renders rows into a single-sheet workbook with a bold header.
func WriteXLSX(rows [][]string, sheet, name string) (Artifact, error) {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return Artifact{}, eris.Wrapf(err, "formatter: name sheet %q", sheet)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return Artifact{}, eris.Wrap(err, "formatter: cell name")
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return Artifact{}, eris.Wrapf(err, "formatter: write row %d of %s", i+1, name)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return Artifact{}, eris.Wrap(err, "formatter: header style")
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return Artifact{}, eris.Wrap(err, "formatter: header style")
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Artifact{}, eris.Wrapf(err, "formatter: write %s", name)
	}
	return newArtifact(name, ContentTypeXLSX, buf.Bytes()), nil
}

// WriteCSV renders rows as comma-separated text with the same cell content
// as WriteXLSX.
func WriteCSV(rows [][]string, name string) (Artifact, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(rows); err != nil {
		return Artifact{}, eris.Wrapf(err, "formatter: write %s", name)
	}
	return newArtifact(name, ContentTypeCSV, buf.Bytes()), nil
}

// Artifacts renders the processed table as workbook and CSV, named after
// prefix and the run date.
func Artifacts(res *models.Result, table *models.Table, prefix, sheet string) ([]Artifact, error) {
	rows := Rows(res.Records, table)

	xlsx, err := WriteXLSX(rows, sheet, FileName(prefix, res.RunDate, "xlsx"))
	if err != nil {
		return nil, err
	}
	csvArtifact, err := WriteCSV(rows, FileName(prefix, res.RunDate, "csv"))
	if err != nil {
		return nil, err
	}
	return []Artifact{xlsx, csvArtifact}, nil
}
