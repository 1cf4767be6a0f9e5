package tabular

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ExportColumns is the header of CSV and XLSX exports.
var ExportColumns = []string{
	"Recipient Email",
	"Recipient Name",
	"Organization Name",
	"Subject",
	"Body",
	"Confidence Score",
	"Flags",
	"Contact Title",
	"Contact Confidence",
	"Email Quality",
	"Attempts",
}

// ExportRow is one reviewable email in export form.
type ExportRow struct {
	RecipientEmail    string `json:"recipient_email"`
	RecipientName     string `json:"recipient_name"`
	OrganizationName  string `json:"organization_name"`
	Subject           string `json:"subject"`
	Body              string `json:"body"`
	ConfidenceScore   int    `json:"confidence_score"`
	Flags             string `json:"flags"`
	ContactTitle      string `json:"contact_title"`
	ContactConfidence int    `json:"contact_confidence"`
	EmailQuality      int    `json:"email_quality"`
	Attempts          int    `json:"attempts"`
	Status            string `json:"status"`
	Edited            bool   `json:"edited,omitempty"`
}

// Row converts a record to its export row.
func Row(rec model.EmailRecord) ExportRow {
	row := ExportRow{
		OrganizationName: rec.Organization.Name,
		ConfidenceScore:  rec.FinalConfidence,
		Flags:            JoinFlags(rec.Flags),
		EmailQuality:     int(math.Round(rec.FusedScore)),
		Attempts:         rec.Attempts,
		Status:           string(rec.Status),
		Edited:           rec.Edited,
	}
	if c := rec.Contact; c != nil {
		row.RecipientEmail = c.Email
		row.RecipientName = c.Name
		row.ContactTitle = c.Title
		row.ContactConfidence = c.Confidence
	}
	if d := rec.Draft; d != nil {
		row.Subject = d.Subject
		row.Body = d.Body
	}
	return row
}

// Rows converts every record of a batch, in order.
func Rows(records []model.EmailRecord) []ExportRow {
	out := make([]ExportRow, len(records))
	for i := range records {
		out[i] = Row(records[i])
	}
	return out
}

// JoinFlags renders flags as "A, B".
func JoinFlags(flags []model.Flag) string {
	s := make([]string, len(flags))
	for i, f := range flags {
		s[i] = string(f)
	}
	return strings.Join(s, ", ")
}

func (r ExportRow) cells() []string {
	return []string{
		r.RecipientEmail,
		r.RecipientName,
		r.OrganizationName,
		r.Subject,
		r.Body,
		strconv.Itoa(r.ConfidenceScore),
		r.Flags,
		r.ContactTitle,
		strconv.Itoa(r.ContactConfidence),
		strconv.Itoa(r.EmailQuality),
		strconv.Itoa(r.Attempts),
	}
}

// WriteCSV writes rows with the ExportColumns header.
func WriteCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return eris.Wrap(err, "tabular: write csv header")
	}
	for _, r := range rows {
		if err := cw.Write(r.cells()); err != nil {
			return eris.Wrap(err, "tabular: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "tabular: flush csv")
}

// WriteXLSX writes rows to a single "Emails" sheet.
func WriteXLSX(w io.Writer, rows []ExportRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Emails")
	if err != nil {
		return eris.Wrap(err, "tabular: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range ExportColumns {
		header.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for i, v := range r.cells() {
			cell := row.AddCell()
			if n, err := strconv.Atoi(v); err == nil && numericColumn(i) {
				cell.SetInt(n)
				continue
			}
			cell.SetString(v)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "tabular: write xlsx")
	}
	return nil
}

func numericColumn(i int) bool {
	switch ExportColumns[i] {
	case "Confidence Score", "Contact Confidence", "Email Quality", "Attempts":
		return true
	}
	return false
}

// WriteJSON writes the whole batch, including history and candidates.
func WriteJSON(w io.Writer, batch *model.Batch) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(batch), "tabular: encode json")
}

// ReadJSON loads a batch written by WriteJSON.
func ReadJSON(r io.Reader) (*model.Batch, error) {
	var b model.Batch
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, eris.Wrap(err, "tabular: decode json")
	}
	return &b, nil
}

// WriteFile writes batch to path, choosing the format by extension.
func WriteFile(path string, batch *model.Batch) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".xlsx" && ext != ".csv" {
		return eris.Errorf("tabular: unsupported output type %q", filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "tabular: create %s", path)
	}

	switch ext {
	case ".json":
		err = WriteJSON(f, batch)
	case ".xlsx":
		err = WriteXLSX(f, Rows(batch.Records))
	default:
		err = WriteCSV(f, Rows(batch.Records))
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = eris.Wrap(cerr, "tabular: close output")
	}
	return err
}
