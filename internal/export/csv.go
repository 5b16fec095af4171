package export

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/carebridge/platform/internal/order/domain"
	"github.com/carebridge/platform/internal/shared/errors"
)

// csvHeader is the fixed 11-column export layout
var csvHeader = []string{
	"Order ID",
	"Date",
	"Patient First Name",
	"Patient Last Name",
	"MRN",
	"Primary Diagnosis",
	"Additional Diagnoses",
	"Medication",
	"Medication History",
	"Provider Name",
	"Provider NPI",
}

// WriteCSV serializes orders to the fixed tabular layout. Array fields
// are joined with "; ". Every cell is double-quoted; the stock csv
// writer only quotes cells that need it, and downstream pharmacy
// tooling expects quotes on all of them.
func WriteCSV(w io.Writer, orders []domain.Order) error {
	if err := writeCSVRow(w, csvHeader); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}

	for _, o := range orders {
		record := []string{
			o.ID.String(),
			o.CreatedAt.Format("2006-01-02"),
			o.PatientFirstName,
			o.PatientLastName,
			o.PatientMRN,
			o.PrimaryDiagnosis,
			strings.Join(o.AdditionalDiagnoses, "; "),
			o.MedicationName,
			strings.Join(o.MedicationHistory, "; "),
			o.ReferringProvider,
			o.ProviderNPI,
		}
		if err := writeCSVRow(w, record); err != nil {
			return errors.Wrap(err, "failed to write CSV record")
		}
	}

	return nil
}

// writeCSVRow emits one row with each cell wrapped in double quotes.
// Embedded quotes are doubled per RFC 4180.
func writeCSVRow(w io.Writer, cells []string) error {
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON serializes orders as a pretty-printed array of full
// records
func WriteJSON(w io.Writer, orders []domain.Order) error {
	out, err := json.MarshalIndent(orders, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal orders")
	}
	if _, err := w.Write(out); err != nil {
		return errors.Wrap(err, "failed to write JSON export")
	}
	return nil
}
