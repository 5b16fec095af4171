package emr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/carebridge/platform/internal/shared/config"
)

// ErrDisabled is returned by lookups when no EMR connection is
// configured. Intake then falls back to manual entry.
var ErrDisabled = errors.New("emr adapter is not enabled")

// ErrNotFound is returned when the EMR has no matching record
var ErrNotFound = errors.New("record not found in emr")

// PatientDemographics holds the subset of EMR patient data used to
// pre-fill the intake form.
type PatientDemographics struct {
	MRN               string    `json:"mrn"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	DateOfBirth       time.Time `json:"dateOfBirth"`
	PrimaryDiagnosis  string    `json:"primaryDiagnosis,omitempty"`
	ActiveMedications []string  `json:"activeMedications,omitempty"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Prescriber holds prescriber master data from the EMR
type Prescriber struct {
	NPI         string    `json:"npi"`
	Name        string    `json:"name"`
	Specialty   string    `json:"specialty,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Adapter queries a legacy pharmacy-management system over SQL Server.
// Read-only: the platform never writes back to the EMR.
type Adapter struct {
	db      *sql.DB
	cfg     config.EMRConfig
	running bool
	mu      sync.RWMutex
}

// New creates a new EMR adapter. The connection is opened in Start.
func New(cfg config.EMRConfig) *Adapter {
	return &Adapter{cfg: cfg}
}

// Enabled reports whether the adapter is configured for use
func (a *Adapter) Enabled() bool {
	return a.cfg.Enabled
}

// Start opens and verifies the database connection
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.cfg.Enabled {
		return ErrDisabled
	}
	if a.running {
		return fmt.Errorf("adapter already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		a.cfg.Host,
		a.cfg.Port,
		a.cfg.Database,
		a.cfg.User,
		a.cfg.Password,
	)

	if a.cfg.Encrypt {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open emr database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping emr database: %w", err)
	}

	a.db = db
	a.running = true

	return nil
}

// Stop closes the database connection
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	a.running = false
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Health checks database connectivity
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.cfg.Enabled {
		return ErrDisabled
	}
	if !a.running {
		return fmt.Errorf("adapter not running")
	}

	return a.db.PingContext(ctx)
}

// IsConnected returns connection status
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running && a.db != nil
}

// FetchPatientDemographics retrieves patient data by MRN
func (a *Adapter) FetchPatientDemographics(ctx context.Context, mrn string) (*PatientDemographics, error) {
	if !a.cfg.Enabled {
		return nil, ErrDisabled
	}
	if !a.IsConnected() {
		return nil, fmt.Errorf("adapter not connected")
	}

	query := `
		SELECT MRN, FirstName, LastName, DateOfBirth, PrimaryDiagnosis, LastModified
		FROM dbo.Patients
		WHERE MRN = @mrn`

	row := a.db.QueryRowContext(ctx, query, sql.Named("mrn", mrn))

	var d PatientDemographics
	var primaryDx sql.NullString

	err := row.Scan(
		&d.MRN,
		&d.FirstName,
		&d.LastName,
		&d.DateOfBirth,
		&primaryDx,
		&d.LastUpdated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch patient: %w", err)
	}

	if primaryDx.Valid {
		d.PrimaryDiagnosis = strings.ToUpper(strings.TrimSpace(primaryDx.String))
	}

	meds, err := a.fetchActiveMedications(ctx, mrn)
	if err != nil {
		return nil, err
	}
	d.ActiveMedications = meds

	return &d, nil
}

// fetchActiveMedications loads the patient's current dispensing records
func (a *Adapter) fetchActiveMedications(ctx context.Context, mrn string) ([]string, error) {
	query := `
		SELECT MedicationName, Strength
		FROM dbo.Dispensings
		WHERE MRN = @mrn AND Active = 1
		ORDER BY DispensedDate DESC`

	rows, err := a.db.QueryContext(ctx, query, sql.Named("mrn", mrn))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch medications: %w", err)
	}
	defer rows.Close()

	var meds []string
	for rows.Next() {
		var name string
		var strength sql.NullString
		if err := rows.Scan(&name, &strength); err != nil {
			return nil, fmt.Errorf("failed to scan medication: %w", err)
		}
		if strength.Valid && strength.String != "" {
			name = name + " " + strength.String
		}
		meds = append(meds, name)
	}

	return meds, rows.Err()
}

// FetchPrescriber retrieves prescriber master data by NPI
func (a *Adapter) FetchPrescriber(ctx context.Context, npi string) (*Prescriber, error) {
	if !a.cfg.Enabled {
		return nil, ErrDisabled
	}
	if !a.IsConnected() {
		return nil, fmt.Errorf("adapter not connected")
	}

	query := `
		SELECT NPI, FullName, Specialty, Phone, LastModified
		FROM dbo.Prescribers
		WHERE NPI = @npi`

	row := a.db.QueryRowContext(ctx, query, sql.Named("npi", npi))

	var p Prescriber
	var specialty, phone sql.NullString

	err := row.Scan(&p.NPI, &p.Name, &specialty, &phone, &p.LastUpdated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch prescriber: %w", err)
	}

	if specialty.Valid {
		p.Specialty = specialty.String
	}
	if phone.Valid {
		p.Phone = phone.String
	}

	return &p, nil
}
