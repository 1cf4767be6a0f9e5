// Package tabular reads organization lists from CSV/XLSX and writes
// reviewed email batches back out as CSV, XLSX, or JSON.
package tabular

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ReadOptions configures input parsing.
type ReadOptions struct {
	// Charset of CSV input, any WHATWG label ("utf-8", "windows-1252", ...).
	// Empty means UTF-8.
	Charset string
	// Sheet selects an XLSX sheet by name. Empty means the first sheet.
	Sheet string
}

// Input is a parsed organization list.
type Input struct {
	Columns    []string
	Records    []model.OrganizationRecord
	Rejections []model.Rejection
}

// Field names a mapped OrganizationRecord column.
type Field string

const (
	FieldName          Field = "name"
	FieldFit           Field = "fit"
	FieldTuition       Field = "tuition"
	FieldPainSignal    Field = "pain_signal"
	FieldWhyGoodFit    Field = "why_good_fit"
	FieldTacticalEntry Field = "tactical_entry"
	FieldWebsite       Field = "website"
)

// headerAliases maps normalized header text to a record field.
var headerAliases = map[string]Field{
	"schoolname":       FieldName,
	"school":           FieldName,
	"organization":     FieldName,
	"organizationname": FieldName,
	"orgname":          FieldName,
	"name":             FieldName,
	"company":          FieldName,
	"fit":              FieldFit,
	"category":         FieldFit,
	"tuition":          FieldTuition,
	"price":            FieldTuition,
	"pricing":          FieldTuition,
	"painsignal":       FieldPainSignal,
	"pain":             FieldPainSignal,
	"painpoint":        FieldPainSignal,
	"whygoodfit":       FieldWhyGoodFit,
	"whyfit":           FieldWhyGoodFit,
	"tacticalentry":    FieldTacticalEntry,
	"entrypoint":       FieldTacticalEntry,
	"website":          FieldWebsite,
	"url":              FieldWebsite,
	"domain":           FieldWebsite,
	"site":             FieldWebsite,
}

// FieldFor resolves a header to a record field.
func FieldFor(header string) (Field, bool) {
	f, ok := headerAliases[normalizeHeader(header)]
	return f, ok
}

func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ReadFile parses a .csv or .xlsx file.
func ReadFile(path string, opts ReadOptions) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	return Parse(filepath.Base(path), data, opts)
}

// Parse decodes data by the extension of name.
func Parse(name string, data []byte, opts ReadOptions) (*Input, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		rows, err = readCSV(bytes.NewReader(data), opts.Charset)
	case ".xlsx":
		rows, err = readXLSX(data, opts.Sheet)
	default:
		return nil, eris.Errorf("tabular: unsupported file type %q", filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}
	return FromRows(rows)
}

func readCSV(r io.Reader, charset string) ([][]string, error) {
	if cs := strings.TrimSpace(charset); cs != "" && !strings.EqualFold(cs, "utf-8") && !strings.EqualFold(cs, "utf8") {
		enc, err := htmlindex.Get(cs)
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: unsupported charset %q", cs)
		}
		r = transform.NewReader(r, enc.NewDecoder())
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read csv")
	}
	return rows, nil
}

func readXLSX(data []byte, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: open xlsx")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("tabular: sheet %q not found", sheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("tabular: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// FromRows maps a header row plus data rows to organization records. Blank
// rows are skipped; rows missing a required field become Rejections.
func FromRows(rows [][]string) (*Input, error) {
	if len(rows) == 0 {
		return nil, eris.New("tabular: input is empty")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	fields := make([]Field, len(header))
	hasName := false
	for i, h := range header {
		if f, ok := FieldFor(h); ok {
			// First matching column wins.
			if !containsField(fields[:i], f) {
				fields[i] = f
			}
			hasName = hasName || f == FieldName
		}
	}
	if !hasName {
		return nil, eris.Errorf("tabular: no organization name column in header %q", strings.Join(header, ", "))
	}

	in := &Input{Columns: header}
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := model.OrganizationRecord{Row: i + 1}
		for j, cell := range row {
			if j >= len(header) {
				break
			}
			v := strings.TrimSpace(cell)
			if fields[j] == "" {
				if v != "" && header[j] != "" {
					if rec.Extra == nil {
						rec.Extra = make(map[string]string)
					}
					rec.Extra[header[j]] = v
				}
				continue
			}
			setField(&rec, fields[j], v)
		}

		if missing := rec.MissingFields(); len(missing) > 0 {
			in.Rejections = append(in.Rejections, model.Rejection{Row: rec.Row, Name: rec.Name, Missing: missing})
			continue
		}
		in.Records = append(in.Records, rec)
	}
	return in, nil
}

func setField(rec *model.OrganizationRecord, f Field, v string) {
	switch f {
	case FieldName:
		rec.Name = v
	case FieldFit:
		rec.Fit = v
	case FieldTuition:
		rec.Tuition = v
	case FieldPainSignal:
		rec.PainSignal = v
	case FieldWhyGoodFit:
		rec.WhyGoodFit = v
	case FieldTacticalEntry:
		rec.TacticalEntry = v
	case FieldWebsite:
		rec.Website = v
	}
}

func containsField(fs []Field, f Field) bool {
	for _, x := range fs {
		if x == f {
			return true
		}
	}
	return false
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
