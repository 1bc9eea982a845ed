package store

import (
	"context"
)

// Account is an authentication account row. Imported clients without a
// real email get a placeholder address.
type Account struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone,omitempty"`
	EmailConfirmed bool           `json:"email_confirmed"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Profile is the client profile row, unique per account.
type Profile struct {
	UserID      string         `json:"user_id"`
	Status      string         `json:"status"`
	FullName    string         `json:"full_name,omitempty"`
	FirstName   string         `json:"first_name,omitempty"`
	LastName    string         `json:"last_name,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	EmiratesID  string         `json:"emirates_id,omitempty"`
	Nationality string         `json:"nationality,omitempty"`
	DateOfBirth string         `json:"date_of_birth,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Vehicle is keyed by VIN.
type Vehicle struct {
	VIN          string         `json:"vin"`
	Make         string         `json:"make,omitempty"`
	Model        string         `json:"model,omitempty"`
	Year         *float64       `json:"year,omitempty"`
	Color        string         `json:"color,omitempty"`
	PlateNumber  string         `json:"plate_number,omitempty"`
	Mileage      *float64       `json:"mileage,omitempty"`
	EngineNumber string         `json:"engine_number,omitempty"`
	Status       string         `json:"status"`
	Features     map[string]any `json:"features,omitempty"`
}

// Application is keyed by the derived application number.
type Application struct {
	ApplicationNumber string         `json:"application_number"`
	UserID            string         `json:"user_id"`
	VehicleID         string         `json:"vehicle_id"`
	Status            string         `json:"status"`
	TermMonths        *float64       `json:"term_months,omitempty"`
	DownPayment       *float64       `json:"down_payment,omitempty"`
	MonthlyPayment    *float64       `json:"monthly_payment,omitempty"`
	InterestRate      *float64       `json:"interest_rate,omitempty"`
	FinancialInfo     map[string]any `json:"financial_info,omitempty"`
}

// Deal is keyed by the deterministic deal id, which guarantees one row
// per source folder.
type Deal struct {
	ID             string         `json:"id"`
	DealNumber     string         `json:"deal_number"`
	ApplicationID  string         `json:"application_id"`
	VehicleID      string         `json:"vehicle_id"`
	ClientID       string         `json:"client_id"`
	Status         string         `json:"status"`
	MonthlyPayment *float64       `json:"monthly_payment,omitempty"`
	TermMonths     *float64       `json:"term_months,omitempty"`
	DownPayment    *float64       `json:"down_payment,omitempty"`
	ContractStart  string         `json:"contract_start,omitempty"`
	ContractEnd    string         `json:"contract_end,omitempty"`
	ContractTerms  map[string]any `json:"contract_terms,omitempty"`
}

// DealDocument is one stored document reference, unique per
// (deal id, storage path).
type DealDocument struct {
	DealID       string `json:"deal_id"`
	Title        string `json:"title"`
	DocumentType string `json:"document_type,omitempty"`
	Status       string `json:"status"`
	StoragePath  string `json:"storage_path"`
}

// DealEvent is one lifecycle event row.
type DealEvent struct {
	DealID    string         `json:"deal_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Store defines the persistence interface for the import stage. Upserts
// taking a force flag overwrite populated columns when it is set and only
// fill gaps otherwise; JSON metadata columns are always merged, never
// replaced.
type Store interface {
	// Account resolution
	FindAccountByEmail(ctx context.Context, email string) (string, error)
	FindAccountByEmiratesID(ctx context.Context, emiratesID string) (string, error)
	FindAccountByPhone(ctx context.Context, phone string) (string, error)
	CreateAccount(ctx context.Context, acc Account) (string, error)

	// Client
	UpsertProfile(ctx context.Context, p Profile, force bool) error
	EnsureUserRole(ctx context.Context, userID, role string) error

	// Deal graph
	UpsertVehicle(ctx context.Context, v Vehicle, force bool) (string, error)
	UpsertApplication(ctx context.Context, a Application, force bool) (string, error)
	UpsertDeal(ctx context.Context, d Deal, force bool) (string, error)

	// Documents and events
	InsertDealDocuments(ctx context.Context, docs []DealDocument) (inserted int64, err error)
	DealEventExists(ctx context.Context, dealID, eventType, storagePath string) (bool, error)
	InsertDealEvent(ctx context.Context, ev DealEvent) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
