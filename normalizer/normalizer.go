// Package normalizer cleans the free-text and date fields of a roster and
// fills in the fields derived from the run date.
package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	customerrors "bpo-assigner/errors"
	"bpo-assigner/models"
)

const (
	Unassigned      = "SIN ASIGNAR"
	UnassignedTitle = "Sin Asignar"
	NotAvailable    = "#N/A"

	// DefaultStage is the stage every processed record starts in.
	DefaultStage = "Pendiente de Contacto"
)

// Excel serial day numbers accepted as dates (1900-01-01 .. 9999-12-31).
const (
	minSerial = 1
	maxSerial = 2958465
)

var monthsES = [...]string{"", "ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sep", "oct", "nov", "dic"}

var nextDayTokens = map[string]bool{"od": true, "on demand": true, "bamx": true}

// StripAccents removes combining marks after canonical decomposition, so
// "Tránsito" becomes "Transito". Applying it twice is the same as once.
func StripAccents(s string) string {
	if s == "" {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// FormatDate renders t as day/month/year without zero padding.
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", t.Day(), int(t.Month()), t.Year())
}

// OpportunityDate renders t as the token appended to opportunity names,
// e.g. "7-abr-2025".
func OpportunityDate(t time.Time) string {
	return fmt.Sprintf("%d-%s-%d", t.Day(), monthsES[t.Month()], t.Year())
}

// ResolveDate interprets a collection-day token.
//
// "AD" resolves to the run date, "OD", "On Demand" and "BAMX" to the next
// day, spreadsheet serials and common date layouts to their calendar date.
// Anything else is returned unchanged together with ErrUnparseableDate.
func ResolveDate(raw string, rc *models.RunContext) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return raw, nil
	}
	if value == "ad" {
		return FormatDate(rc.RunDate), nil
	}
	if nextDayTokens[value] {
		return FormatDate(rc.NextDate), nil
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if serial >= minSerial && serial <= maxSerial {
			t, err := excelize.ExcelDateToTime(serial, false)
			if err == nil {
				return FormatDate(t), nil
			}
		}
		return raw, customerrors.ErrUnparseableDate
	}

	loc := rc.RunDate.Location()
	if loc == nil {
		loc = time.UTC
	}
	t, err := dateparse.ParseIn(strings.TrimSpace(raw), loc)
	if err != nil {
		return raw, customerrors.ErrUnparseableDate
	}
	return FormatDate(t), nil
}

// Scheme keeps "Dedicado" and "Regular"; anything else is unassigned.
func Scheme(v string) string {
	v = strings.TrimSpace(v)
	if v == "Dedicado" || v == "Regular" {
		return v
	}
	return Unassigned
}

// Coordinator maps empty and "#N/A" to the unassigned label.
func Coordinator(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == NotAvailable {
		return Unassigned
	}
	return v
}

// Haulier strips accents and fills empty names.
func Haulier(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return UnassignedTitle
	}
	return StripAccents(v)
}

// Executive maps empty, "#N/A" and "N/A" to the unassigned label.
func Executive(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == NotAvailable || v == "N/A" {
		return Unassigned
	}
	return v
}

// Reason strips accents and folds empty and "N/A" into "#N/A".
func Reason(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return NotAvailable
	}
	v = StripAccents(v)
	if v == "N/A" {
		return NotAvailable
	}
	return v
}

// Normalize returns a normalized copy of records with the derived fields
// filled in. Unparseable collection dates keep their raw value and are
// reported as DataErrors; they never abort the run.
func Normalize(records []models.Record, rc *models.RunContext, stage string) ([]models.Record, []*customerrors.DataError) {
	if stage == "" {
		stage = DefaultStage
	}
	oppDate := OpportunityDate(rc.RunDate)
	closeDate := FormatDate(rc.RunDate)

	out := make([]models.Record, len(records))
	var dataErrs []*customerrors.DataError

	for i, r := range records {
		r.PartyID = strings.TrimSpace(r.PartyID)
		r.Scheme = Scheme(r.Scheme)
		r.Coordinator = Coordinator(r.Coordinator)
		r.HaulierName = Haulier(r.HaulierName)
		r.Executive = Executive(r.Executive)
		r.Reason = Reason(r.Reason)

		date, err := ResolveDate(r.CollectionDateRaw, rc)
		if err != nil {
			dataErrs = append(dataErrs, &customerrors.DataError{
				Row:    r.Row,
				Column: models.ColCollectionDate,
				Value:  r.CollectionDateRaw,
				Err:    err,
			})
		}
		r.CollectionDate = date

		r.OpportunityName = r.DestinationName + " " + oppDate
		r.CloseDate = closeDate
		r.Stage = stage
		r.AssignedAgent = ""
		r.AssignedBy = models.SourceNone

		out[i] = r
	}

	return out, dataErrs
}
