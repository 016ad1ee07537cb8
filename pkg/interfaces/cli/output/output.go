package output

import (
	"bytes"
	stdcsv "encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
)

// Supported formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Config holds configuration for output generation
type Config struct {
	Format    string
	OutputDir string
	// Out receives text and JSON output when no directory is set
	Out io.Writer
}

// Table is one named grid of a report. CSV files and workbook sheets
// are named after it.
type Table struct {
	Name    string
	Header  []string
	Records [][]string
}

// Report is the output of one command: its JSON value and the tables
// rendered for text, CSV and spreadsheet output
type Report struct {
	Name   string
	Title  string
	Value  interface{}
	Tables []Table
	// Summary lines are printed above the tables in text output
	Summary []string
}

// Generate writes the report in the configured format
func Generate(report Report, config Config) error {
	if config.Out == nil {
		config.Out = os.Stdout
	}
	switch config.Format {
	case FormatText, "":
		return generateTextOutput(report, config)
	case FormatJSON:
		return generateJSONOutput(report, config)
	case FormatCSV:
		return generateCSVOutput(report, config)
	case FormatXLSX:
		return generateXLSXOutput(report, config)
	default:
		return eris.Errorf("output: unsupported format %q", config.Format)
	}
}

// NewTable lays out rows with their csv struct tags as columns
func NewTable[T any](name string, rows []T) (Table, error) {
	var zero T
	header, err := csvutil.Header(zero, "csv")
	if err != nil {
		return Table{}, eris.Wrapf(err, "output: header of %s", name)
	}
	table := Table{Name: name, Header: header, Records: [][]string{}}
	if len(rows) == 0 {
		return table, nil
	}

	b, err := csvutil.Marshal(rows)
	if err != nil {
		return Table{}, eris.Wrapf(err, "output: encode %s", name)
	}
	records, err := stdcsv.NewReader(bytes.NewReader(b)).ReadAll()
	if err != nil {
		return Table{}, eris.Wrapf(err, "output: re-read %s", name)
	}
	table.Records = records[1:]
	return table, nil
}

func generateTextOutput(report Report, config Config) error {
	w := config.Out
	fmt.Fprintf(w, "%s\n%s\n", report.Title, strings.Repeat("=", len(report.Title)))
	for _, line := range report.Summary {
		fmt.Fprintln(w, line)
	}
	if len(report.Summary) > 0 {
		fmt.Fprintln(w)
	}

	for _, t := range report.Tables {
		if len(t.Records) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s (%d)\n", t.Name, len(t.Records))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(t.Header, "\t"))
		for _, rec := range t.Records {
			fmt.Fprintln(tw, strings.Join(rec, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return eris.Wrap(err, "output: write text")
		}
		fmt.Fprintln(w)
	}
	return nil
}

func generateJSONOutput(report Report, config Config) error {
	jsonData, err := json.MarshalIndent(report.Value, "", "  ")
	if err != nil {
		return eris.Wrap(err, "output: marshal json")
	}

	if config.OutputDir == "" {
		_, err = fmt.Fprintln(config.Out, string(jsonData))
		return err
	}
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return eris.Wrap(err, "output: create output directory")
	}
	filename := filepath.Join(config.OutputDir, report.Name+".json")
	if err := os.WriteFile(filename, jsonData, 0o644); err != nil {
		return eris.Wrap(err, "output: write json file")
	}
	return nil
}

func generateCSVOutput(report Report, config Config) error {
	if config.OutputDir == "" {
		return eris.New("output: directory required for csv format")
	}
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return eris.Wrap(err, "output: create output directory")
	}

	for _, t := range report.Tables {
		filename := filepath.Join(config.OutputDir, report.Name+"_"+t.Name+".csv")
		if err := writeCSVFile(filename, t); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVFile(filename string, t Table) error {
	f, err := os.Create(filename)
	if err != nil {
		return eris.Wrapf(err, "output: create %s", filename)
	}
	defer f.Close()

	w := stdcsv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		return eris.Wrapf(err, "output: write %s", filename)
	}
	if err := w.WriteAll(t.Records); err != nil {
		return eris.Wrapf(err, "output: write %s", filename)
	}
	return nil
}

func generateXLSXOutput(report Report, config Config) error {
	if config.OutputDir == "" {
		return eris.New("output: directory required for xlsx format")
	}
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return eris.Wrap(err, "output: create output directory")
	}

	f, err := Workbook(report)
	if err != nil {
		return err
	}
	defer f.Close()

	filename := filepath.Join(config.OutputDir, report.Name+".xlsx")
	if err := f.SaveAs(filename); err != nil {
		return eris.Wrapf(err, "output: save %s", filename)
	}
	return nil
}

// Workbook renders every table of the report as a sheet. Numeric cells
// are written as numbers.
func Workbook(report Report) (*excelize.File, error) {
	f := excelize.NewFile()
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Size: 11},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "output: header style")
	}

	for i, t := range report.Tables {
		sheet := t.Name
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, eris.Wrapf(err, "output: name sheet %s", sheet)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, eris.Wrapf(err, "output: add sheet %s", sheet)
		}

		for col, h := range t.Header {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			if err := f.SetCellValue(sheet, cell, h); err != nil {
				return nil, eris.Wrapf(err, "output: write %s!%s", sheet, cell)
			}
			f.SetCellStyle(sheet, cell, cell, headerStyle)
		}
		for r, rec := range t.Records {
			for col, v := range rec {
				cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
				if err := f.SetCellValue(sheet, cell, cellValue(v)); err != nil {
					return nil, eris.Wrapf(err, "output: write %s!%s", sheet, cell)
				}
			}
		}
		if len(t.Header) > 0 {
			last, _ := excelize.ColumnNumberToName(len(t.Header))
			f.SetColWidth(sheet, "A", last, 16)
		}
	}
	return f, nil
}

func cellValue(s string) interface{} {
	if s == "" || !strings.ContainsAny(s[:1], "-.0123456789") {
		return s
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}
