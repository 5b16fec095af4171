package export

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"

	"github.com/carebridge/platform/internal/order/domain"
	"github.com/carebridge/platform/internal/shared/errors"
)

// WritePDF renders an order's care plan as a paginated document: a
// title block, a patient information block, and the wrapped plan body,
// with "Page N of M" stamped on every page footer.
func WritePDF(w io.Writer, o domain.Order) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AliasNbPages("")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	// Title block
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Pharmacist Care Plan", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", o.UpdatedAt.Format("January 2, 2006")), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	// Patient information block
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Patient Information", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)

	info := [][2]string{
		{"Patient", fmt.Sprintf("%s %s", o.PatientFirstName, o.PatientLastName)},
		{"MRN", o.PatientMRN},
		{"Primary Diagnosis", o.PrimaryDiagnosis},
		{"Medication", o.MedicationName},
		{"Referring Provider", fmt.Sprintf("%s (NPI %s)", o.ReferringProvider, o.ProviderNPI)},
		{"Order Date", o.CreatedAt.Format("2006-01-02")},
		{"Review Status", string(o.ApprovalStatus)},
	}
	for _, row := range info {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(45, 6, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, row[1], "", "L", false)
	}
	pdf.Ln(4)

	// Plan body, wrapped
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Care Plan", "B", 1, "L", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, o.CarePlan, "", "L", false)

	if err := pdf.Output(w); err != nil {
		return errors.Wrap(err, "failed to render PDF")
	}
	return nil
}
