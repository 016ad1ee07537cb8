package csv

import (
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
)

// Scenario file names inside a data directory
const (
	ComponentsFile = "components.csv"
	BOMFile        = "bom.csv"
	StandardFile   = "standard_equipment.csv"
	InventoryFile  = "inventory.csv"
)

const dateLayout = "2006-01-02"

type componentRow struct {
	Code         string          `csv:"code"`
	Name         string          `csv:"name"`
	Category     string          `csv:"category"`
	UnitCost     decimal.Decimal `csv:"unit_cost"`
	LeadTimeDays int             `csv:"lead_time_days,omitempty"`
	MinStock     int64           `csv:"min_stock,omitempty"`
	SupplierRef  string          `csv:"supplier_ref"`
}

type bomRow struct {
	ModelRef      string           `csv:"model_ref"`
	RevisionID    string           `csv:"revision_id"`
	EffectiveDate string           `csv:"effective_date"`
	Active        bool             `csv:"active,omitempty"`
	NodeID        string           `csv:"node_id"`
	ComponentCode string           `csv:"component_code"`
	ParentID      string           `csv:"parent_id"`
	Quantity      decimal.Decimal  `csv:"quantity"`
	ScrapFactor   *decimal.Decimal `csv:"scrap_factor,omitempty"`
	IsAssembly    bool             `csv:"is_assembly,omitempty"`
}

type standardRow struct {
	ModelRef      string          `csv:"model_ref"`
	ComponentCode string          `csv:"component_code"`
	Qty           decimal.Decimal `csv:"qty"`
	Notes         string          `csv:"notes,omitempty"`
}

type inventoryRow struct {
	ComponentCode string `csv:"component_code"`
	QtyOnHand     int64  `csv:"qty_on_hand,omitempty"`
	QtyReserved   int64  `csv:"qty_reserved,omitempty"`
	AsOf          string `csv:"as_of,omitempty"`
}

// Revision is a BOM revision with its node arena
type Revision struct {
	entities.BOMRevision
	Nodes []entities.BOMNode
}

// Dataset is everything read from a scenario directory
type Dataset struct {
	Components []*entities.Component
	Revisions  []Revision
	Standard   []entities.StandardEquipmentEntry
	Inventory  []entities.InventoryPosition
}

// Loader reads planning data from CSV files. Rows that fail validation
// are skipped and reported alongside the rows that loaded; a nil slice
// means the file itself could not be read.
type Loader struct{}

// NewLoader creates a new CSV loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadComponents reads component master data
func (l *Loader) LoadComponents(filename string) ([]*entities.Component, error) {
	var rows []componentRow
	if err := decodeFile(filename, &rows); err != nil {
		return nil, err
	}

	var errs error
	components := make([]*entities.Component, 0, len(rows))
	for i, r := range rows {
		c, err := entities.NewComponent(entities.ComponentCode(strings.TrimSpace(r.Code)), r.Name, r.Category,
			r.UnitCost, r.LeadTimeDays, entities.Quantity(r.MinStock), strings.TrimSpace(r.SupplierRef))
		if err != nil {
			errs = multierr.Append(errs, rowError(filename, i, err))
			continue
		}
		components = append(components, c)
	}
	return components, errs
}

// LoadBOM reads BOM revisions. Rows are grouped by revision id in order
// of first appearance; the revision header comes from its first row.
func (l *Loader) LoadBOM(filename string) ([]Revision, error) {
	var rows []bomRow
	if err := decodeFile(filename, &rows); err != nil {
		return nil, err
	}

	var errs error
	revisions := make([]Revision, 0)
	index := make(map[string]int)
	for i, r := range rows {
		revisionID := strings.TrimSpace(r.RevisionID)
		if revisionID == "" || strings.TrimSpace(r.ModelRef) == "" {
			errs = multierr.Append(errs, rowError(filename, i, &entities.ValidationError{
				NodeID: r.NodeID, Field: "revision_id", Message: "model and revision are required",
			}))
			continue
		}

		pos, ok := index[revisionID]
		if !ok {
			effective, err := parseDate(r.EffectiveDate)
			if err != nil {
				errs = multierr.Append(errs, rowError(filename, i, &entities.ValidationError{
					ModelRef: r.ModelRef, Field: "effective_date", Message: err.Error(),
				}))
				continue
			}
			pos = len(revisions)
			index[revisionID] = pos
			revisions = append(revisions, Revision{BOMRevision: entities.BOMRevision{
				ModelRef:      strings.TrimSpace(r.ModelRef),
				RevisionID:    revisionID,
				EffectiveDate: effective,
				Active:        r.Active,
			}})
		}

		scrap := decimal.NewFromInt(1)
		if r.ScrapFactor != nil {
			scrap = *r.ScrapFactor
		}
		node, err := entities.NewBOMNode(strings.TrimSpace(r.NodeID), entities.ComponentCode(strings.TrimSpace(r.ComponentCode)),
			strings.TrimSpace(r.ParentID), r.Quantity, scrap, r.IsAssembly)
		if err != nil {
			errs = multierr.Append(errs, rowError(filename, i, err))
			continue
		}
		revisions[pos].Nodes = append(revisions[pos].Nodes, *node)
	}
	return revisions, errs
}

// LoadStandardEquipment reads the promised-equipment list
func (l *Loader) LoadStandardEquipment(filename string) ([]entities.StandardEquipmentEntry, error) {
	var rows []standardRow
	if err := decodeFile(filename, &rows); err != nil {
		return nil, err
	}

	var errs error
	entries := make([]entities.StandardEquipmentEntry, 0, len(rows))
	for i, r := range rows {
		e, err := entities.NewStandardEquipmentEntry(strings.TrimSpace(r.ModelRef),
			entities.ComponentCode(strings.TrimSpace(r.ComponentCode)), r.Qty, r.Notes)
		if err != nil {
			errs = multierr.Append(errs, rowError(filename, i, err))
			continue
		}
		entries = append(entries, *e)
	}
	return entries, errs
}

// LoadInventory reads stock positions. A row without as_of is stamped
// with asOf.
func (l *Loader) LoadInventory(filename string, asOf time.Time) ([]entities.InventoryPosition, error) {
	var rows []inventoryRow
	if err := decodeFile(filename, &rows); err != nil {
		return nil, err
	}

	var errs error
	positions := make([]entities.InventoryPosition, 0, len(rows))
	for i, r := range rows {
		stamp := asOf
		if strings.TrimSpace(r.AsOf) != "" {
			t, err := parseDate(r.AsOf)
			if err != nil {
				errs = multierr.Append(errs, rowError(filename, i, &entities.ValidationError{
					ComponentRef: entities.ComponentCode(r.ComponentCode), Field: "as_of", Message: err.Error(),
				}))
				continue
			}
			stamp = t
		}
		p, err := entities.NewInventoryPosition(entities.ComponentCode(strings.TrimSpace(r.ComponentCode)),
			entities.Quantity(r.QtyOnHand), entities.Quantity(r.QtyReserved), stamp)
		if err != nil {
			errs = multierr.Append(errs, rowError(filename, i, err))
			continue
		}
		positions = append(positions, *p)
	}
	return positions, errs
}

// LoadDirectory reads a scenario directory. components.csv is required;
// the other files are optional. An unreadable file aborts the load, while
// rejected rows are returned with the dataset.
func (l *Loader) LoadDirectory(dir string, asOf time.Time) (*Dataset, error) {
	var (
		ds   Dataset
		errs error
		err  error
	)

	ds.Components, err = l.LoadComponents(filepath.Join(dir, ComponentsFile))
	if ds.Components == nil && err != nil {
		return nil, err
	}
	errs = multierr.Append(errs, err)

	if path, ok := optional(dir, BOMFile); ok {
		ds.Revisions, err = l.LoadBOM(path)
		if ds.Revisions == nil && err != nil {
			return nil, err
		}
		errs = multierr.Append(errs, err)
	}
	if path, ok := optional(dir, StandardFile); ok {
		ds.Standard, err = l.LoadStandardEquipment(path)
		if ds.Standard == nil && err != nil {
			return nil, err
		}
		errs = multierr.Append(errs, err)
	}
	if path, ok := optional(dir, InventoryFile); ok {
		ds.Inventory, err = l.LoadInventory(path, asOf)
		if ds.Inventory == nil && err != nil {
			return nil, err
		}
		errs = multierr.Append(errs, err)
	}
	return &ds, errs
}

// Populate stores the dataset in the given repositories. Inventory is
// loaded as one snapshot, which advances the snapshot version once.
func (ds *Dataset) Populate(
	ctx context.Context,
	components repositories.ComponentRepository,
	boms repositories.BOMRepository,
	standard repositories.StandardEquipmentRepository,
	inventory repositories.InventoryRepository,
) error {
	if err := components.LoadComponents(ds.Components); err != nil {
		return eris.Wrap(err, "csv: load components")
	}
	for _, rev := range ds.Revisions {
		if err := boms.LoadRevision(rev.BOMRevision, rev.Nodes); err != nil {
			return eris.Wrapf(err, "csv: load revision %s", rev.RevisionID)
		}
	}
	if len(ds.Standard) > 0 {
		if err := standard.LoadEntries(ds.Standard); err != nil {
			return eris.Wrap(err, "csv: load standard equipment")
		}
	}
	if len(ds.Inventory) > 0 {
		if _, err := inventory.LoadPositions(ctx, ds.Inventory); err != nil {
			return eris.Wrap(err, "csv: load inventory")
		}
	}
	return nil
}

// RowError locates a rejected row; line numbers count the header
type RowError struct {
	File string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s line %d: %v", filepath.Base(e.File), e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

func rowError(filename string, i int, err error) error {
	return &RowError{File: filename, Line: i + 2, Err: err}
}

func decodeFile(filename string, v interface{}) error {
	f, err := os.Open(filename)
	if err != nil {
		return eris.Wrapf(err, "csv: open %s", filename)
	}
	defer f.Close()

	r := stdcsv.NewReader(f)
	r.TrimLeadingSpace = true
	dec, err := csvutil.NewDecoder(r)
	if errors.Is(err, io.EOF) {
		return eris.Errorf("csv: %s is empty", filename)
	}
	if err != nil {
		return eris.Wrapf(err, "csv: read header of %s", filename)
	}

	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return eris.Wrapf(err, "csv: decode %s", filename)
	}
	return nil
}

func optional(dir, name string) (string, bool) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", false
	}
	return path, true
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}
