package model

// NormalizedClient is the client slice of an import record after field
// normalization. Empty strings mean the field was absent from the source.
type NormalizedClient struct {
	FullName     string `json:"full_name"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	EmiratesID   string `json:"emirates_id"`
	PassportNo   string `json:"passport_no"`
	Nationality  string `json:"nationality"`
	DateOfBirth  string `json:"date_of_birth"`
	LicenseNo    string `json:"license_no"`
	LicenseIssue string `json:"license_issue_date"`
	LicenseExp   string `json:"license_expiry_date"`
	Address      string `json:"address"`
}

// NormalizedVehicle is the vehicle slice of an import record. VIN is the
// identity key: imports fail fast without one.
type NormalizedVehicle struct {
	VIN          string   `json:"vin"`
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Year         *float64 `json:"year,omitempty"`
	Color        string   `json:"color"`
	PlateNumber  string   `json:"plate_number"`
	Mileage      *float64 `json:"mileage,omitempty"`
	EngineNumber string   `json:"engine_number"`
	RegExpiry    string   `json:"registration_expiry"`
}

// NormalizedDeal is the lease slice of an import record.
type NormalizedDeal struct {
	DealID          string   `json:"deal_id"`
	ApplicationRef  string   `json:"application_ref"`
	LeaseRef        string   `json:"lease_ref"`
	VehiclePrice    *float64 `json:"vehicle_price,omitempty"`
	DownPayment     *float64 `json:"down_payment,omitempty"`
	MonthlyPayment  *float64 `json:"monthly_payment,omitempty"`
	TermMonths      *float64 `json:"term_months,omitempty"`
	InterestRate    *float64 `json:"interest_rate,omitempty"`
	LeaseStartDate  string   `json:"lease_start_date"`
	LeaseEndDate    string   `json:"lease_end_date"`
	ContractDate    string   `json:"contract_date"`
	ResidualValue   *float64 `json:"residual_value,omitempty"`
	InsuranceAmount *float64 `json:"insurance_amount,omitempty"`
}

// NormalizedDocument is one stored document reference carried into the
// import stage.
type NormalizedDocument struct {
	FileName    string   `json:"file_name"`
	Category    Category `json:"category"`
	StoragePath string   `json:"storage_path"`
	SizeBytes   int64    `json:"size_bytes,omitempty"`
}

// ImportRecord is the fully normalized shape the importer consumes.
type ImportRecord struct {
	DealID     string               `json:"deal_id"`
	FolderName string               `json:"folder_name"`
	Client     NormalizedClient     `json:"client"`
	Vehicle    NormalizedVehicle    `json:"vehicle"`
	Deal       NormalizedDeal       `json:"deal"`
	Documents  []NormalizedDocument `json:"documents"`
}
