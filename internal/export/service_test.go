package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/carebridge/platform/internal/order/domain"
)

type fakeLister struct {
	orders []domain.Order
	filter domain.ListFilter
}

func (f *fakeLister) List(ctx context.Context, filter domain.ListFilter) ([]domain.Order, int, error) {
	f.filter = filter

	// Apply the filter the way the real repository would
	var out []domain.Order
	for _, o := range f.orders {
		if filter.CreatedFrom != nil && o.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && o.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		if filter.Medication != "" &&
			!strings.Contains(strings.ToLower(o.MedicationName), strings.ToLower(filter.Medication)) {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

func exportOrder(mrn, medication, npi string, created time.Time) domain.Order {
	o, _ := domain.NewOrder(domain.Submission{
		PatientFirstName:    "Jane",
		PatientLastName:     "Doe",
		PatientMRN:          mrn,
		PrimaryDiagnosis:    "G70.0",
		AdditionalDiagnoses: []string{"I10", "E11.9"},
		ReferringProvider:   "Sarah Chen",
		ProviderNPI:         npi,
		MedicationName:      medication,
		MedicationHistory:   []string{"Prednisone 10mg", "Pyridostigmine 60mg"},
		PatientRecords:      "records",
	}, "plan text")
	o.CreatedAt = created
	return *o
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 12, 0, 0, 0, time.UTC)
}

func TestRunMedicationSubstringFilter(t *testing.T) {
	lister := &fakeLister{orders: []domain.Order{
		exportOrder("123456", "Privigen", "1234567890", day(1)),
		exportOrder("654321", "Albuterol", "9876543210", day(2)),
	}}
	svc := NewService(lister, 0)

	result, err := svc.Run(context.Background(), Filter{Medication: "priv"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Orders) != 1 || result.Orders[0].MedicationName != "Privigen" {
		t.Errorf("Expected only Privigen order, got %v", result.Orders)
	}
}

func TestRunDateRangeInclusive(t *testing.T) {
	lister := &fakeLister{orders: []domain.Order{
		exportOrder("111111", "Privigen", "1234567890", day(1)),
		exportOrder("222222", "Privigen", "1234567890", day(5)),
		exportOrder("333333", "Privigen", "1234567890", day(9)),
	}}
	svc := NewService(lister, 0)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 5, 23, 59, 59, 0, time.UTC)

	result, err := svc.Run(context.Background(), Filter{Start: &start, End: &end})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Orders) != 2 {
		t.Errorf("Expected 2 orders in range, got %d", len(result.Orders))
	}
}

func TestRunSummaryCounts(t *testing.T) {
	lister := &fakeLister{orders: []domain.Order{
		exportOrder("111111", "Privigen", "1234567890", day(1)),
		exportOrder("111111", "privigen", "1234567890", day(2)), // repeat patient, same med different case
		exportOrder("222222", "Albuterol", "9876543210", day(3)),
	}}
	svc := NewService(lister, 0)

	result, err := svc.Run(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	s := result.Summary
	if s.TotalOrders != 3 {
		t.Errorf("TotalOrders = %d, want 3", s.TotalOrders)
	}
	if s.DistinctPatients != 2 {
		t.Errorf("DistinctPatients = %d, want 2", s.DistinctPatients)
	}
	if s.DistinctProviders != 2 {
		t.Errorf("DistinctProviders = %d, want 2", s.DistinctProviders)
	}
	if s.DistinctMedications != 2 {
		t.Errorf("DistinctMedications = %d, want 2 (case-insensitive)", s.DistinctMedications)
	}
}

func TestRunZeroMatchesReportsActiveFilters(t *testing.T) {
	lister := &fakeLister{}
	svc := NewService(lister, 0)

	start := day(1)
	_, err := svc.Run(context.Background(), Filter{Start: &start, Medication: "priv"})
	if err == nil {
		t.Fatal("Expected error for zero matches")
	}
	if !strings.Contains(err.Error(), "no orders match") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestRunEmptyStoreWithoutFilters(t *testing.T) {
	lister := &fakeLister{}
	svc := NewService(lister, 0)

	_, err := svc.Run(context.Background(), Filter{})
	if err == nil {
		t.Fatal("Expected error for empty store")
	}
	if !strings.Contains(err.Error(), "no orders to export") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestRunCapsRows(t *testing.T) {
	lister := &fakeLister{orders: []domain.Order{
		exportOrder("111111", "Privigen", "1234567890", day(1)),
	}}
	svc := NewService(lister, 500)

	if _, err := svc.Run(context.Background(), Filter{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if lister.filter.Limit != 500 {
		t.Errorf("Expected limit 500 passed to repository, got %d", lister.filter.Limit)
	}
}

func TestWriteCSV(t *testing.T) {
	orders := []domain.Order{
		exportOrder("123456", "Privigen", "1234567890", day(1)),
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, orders); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	raw := buf.String()
	for i, line := range strings.Split(strings.TrimRight(raw, "\n"), "\n") {
		for _, cell := range strings.Split(line, ",") {
			if !strings.HasPrefix(cell, `"`) || !strings.HasSuffix(cell, `"`) {
				t.Errorf("line %d cell %s is not double-quoted", i, cell)
			}
		}
	}

	records, err := csv.NewReader(strings.NewReader(raw)).ReadAll()
	if err != nil {
		t.Fatalf("Output is not valid CSV: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected header + 1 record, got %d rows", len(records))
	}
	if len(records[0]) != 11 {
		t.Errorf("Expected 11 columns, got %d", len(records[0]))
	}

	row := records[1]
	if row[1] != "2025-06-01" {
		t.Errorf("Date column = %q, want 2025-06-01", row[1])
	}
	if row[4] != "123456" {
		t.Errorf("MRN column = %q", row[4])
	}
	if row[6] != "I10; E11.9" {
		t.Errorf("Additional diagnoses column = %q, want semicolon-space join", row[6])
	}
	if row[8] != "Prednisone 10mg; Pyridostigmine 60mg" {
		t.Errorf("Medication history column = %q", row[8])
	}
	if row[10] != "1234567890" {
		t.Errorf("NPI column = %q", row[10])
	}
}

func TestWriteCSVEscapesEmbeddedQuotes(t *testing.T) {
	orders := []domain.Order{
		exportOrder("123456", `IVIG "Privigen" 10g`, "1234567890", day(1)),
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, orders); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	raw := buf.String()
	if !strings.Contains(raw, `"IVIG ""Privigen"" 10g"`) {
		t.Errorf("Embedded quotes not doubled: %s", raw)
	}

	records, err := csv.NewReader(strings.NewReader(raw)).ReadAll()
	if err != nil {
		t.Fatalf("Output is not valid CSV: %v", err)
	}
	if records[1][7] != `IVIG "Privigen" 10g` {
		t.Errorf("Medication column = %q after roundtrip", records[1][7])
	}
}

func TestWriteJSONPretty(t *testing.T) {
	orders := []domain.Order{
		exportOrder("123456", "Privigen", "1234567890", day(1)),
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, orders); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var decoded []domain.Order
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not a valid JSON array: %v", err)
	}
	if len(decoded) != 1 || decoded[0].PatientMRN != "123456" {
		t.Errorf("Unexpected decoded orders: %v", decoded)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("Expected pretty-printed output")
	}
}

func TestWritePDF(t *testing.T) {
	order := exportOrder("123456", "Privigen", "1234567890", day(1))
	order.CarePlan = strings.Repeat("PROBLEM LIST line of care plan text.\n", 200)

	var buf bytes.Buffer
	if err := WritePDF(&buf, order); err != nil {
		t.Fatalf("WritePDF failed: %v", err)
	}

	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Error("Expected PDF magic header")
	}
	if buf.Len() < 1000 {
		t.Errorf("Suspiciously small PDF: %d bytes", buf.Len())
	}
}
