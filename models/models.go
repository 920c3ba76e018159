package models

import "time"

// Source records which stage decided a record's owner.
type Source string

const (
	SourceNone      Source = ""
	SourceSentinel  Source = "sentinel"
	SourceExclusive Source = "exclusive"
	SourceReason    Source = "reason"
	SourcePriority  Source = "priority"
	SourceQuota     Source = "quota"
	SourceOverflow  Source = "overflow"
	SourceBalance   Source = "balance"
)

// Forced reports whether the owner was set by an override rule that the
// balancer must leave alone.
func (s Source) Forced() bool {
	return s == SourceSentinel || s == SourceExclusive || s == SourceReason
}

// Record represents one row of the uploaded delivery roster.
// An empty AssignedAgent means the record is still unassigned.
type Record struct {
	Row int

	PartyID         string
	DestinationName string
	OrderQuantity   string
	DeliveryNbr     string
	Scheme          string
	Coordinator     string
	HaulierName     string
	Executive       string
	Reason          string

	CollectionDateRaw string
	CollectionDate    string

	// Derived fields
	OpportunityName string
	CloseDate       string
	Stage           string

	AssignedAgent string
	AssignedBy    Source
}

// Assigned reports whether the record already has an owner.
func (r Record) Assigned() bool {
	return r.AssignedAgent != ""
}

// Column names of the input and output tables.
const (
	ColParty          = "Delv Ship-To Party"
	ColName           = "Delv Ship-To Name"
	ColOrderQuantity  = "Order Quantity"
	ColDeliveryNbr    = "Delivery Nbr"
	ColScheme         = "Esquema"
	ColCoordinator    = "Coordinador LT"
	ColHaulier        = "Shpt Haulier Name"
	ColExecutive      = "Ejecutivo RBO"
	ColReason         = "Motivo"
	ColCollectionDay  = "Día de recolección"
	ColCollectionDate = "Fecha de recolección"
	ColOpportunity    = "Nombre de oportunidad1"
	ColCloseDate      = "Fecha de cierre"
	ColStage          = "Etapa"
	ColAgent          = "Agente BPO"
)

// RequiredColumns must be present in every input table.
var RequiredColumns = []string{ColParty, ColName, ColScheme, ColReason}

// OutputColumns is the fixed column order of the processed table.
var OutputColumns = []string{
	ColParty, ColName, ColOrderQuantity, ColDeliveryNbr,
	ColScheme, ColCoordinator, ColHaulier, ColExecutive, ColReason,
	ColCollectionDate, ColOpportunity, ColCloseDate, ColStage, ColAgent,
}

// Table is a parsed input roster. Columns holds the canonical output column
// names the input carried, so writers can omit the ones that were absent.
type Table struct {
	Columns map[string]bool
	Records []Record
}

// HasColumn reports whether the input carried the given output column.
func (t *Table) HasColumn(name string) bool {
	return t.Columns[name]
}

// AgentEntry is one seat of the run roster.
type AgentEntry struct {
	Name     string
	Weight   float64
	Sentinel bool
}

// Weighted reports whether the entry carries a reduced share.
func (a AgentEntry) Weighted() bool {
	return a.Weight < 1.0
}

// RunContext is built once per invocation and treated as read-only once the
// rule engine starts.
type RunContext struct {
	RunID    string
	RunDate  time.Time
	NextDate time.Time

	// ExtraCoverage is set when RunDate falls on the extra-coverage weekday.
	ExtraCoverage bool

	Roster        []AgentEntry
	Substitutions map[string]string
	Removed       []string
}

// AgentNames returns the roster names in roster order.
func (rc *RunContext) AgentNames() []string {
	names := make([]string, len(rc.Roster))
	for i, a := range rc.Roster {
		names[i] = a.Name
	}
	return names
}

// EditKind tags a RosterEdit.
type EditKind int

const (
	// EditSubstitute replaces the absent agent's seat with a new name.
	EditSubstitute EditKind = iota
	// EditRemove drops the absent agent's seat.
	EditRemove
)

// RosterEdit is a manual per-run change to the roster.
type RosterEdit struct {
	Kind       EditKind
	Absent     string
	Substitute string
}

// Result holds the processed records and the distribution summary of a run.
type Result struct {
	RunID   string
	RunDate time.Time

	Records []Record

	// Roster order, used to render counts deterministically.
	Agents []string

	Counts        map[string]int
	Quotas        map[string]int
	BySource      map[string]map[Source]int
	SentinelLabel string
	SentinelCount int
	Overflow      int
	Transfers     int

	// Warnings are recoverable problems met during the run.
	Warnings []error
}
