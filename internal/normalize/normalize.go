// Package normalize projects the loosely-typed composite produced by the
// aggregation stage into the strongly-typed record the importer consumes.
// Leaf-level coercion is total: garbage values collapse to empty fields.
// Only structurally missing top-level sections fail, since those indicate
// a corrupt aggregation rather than noisy extraction.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/fastlease/deal-ingest/internal/model"
)

// ValidationError reports a structurally invalid aggregated record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("normalize: invalid aggregated record: %s %s", e.Field, e.Reason)
}

var refPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Normalize validates the record's structure and coerces every leaf field.
// The only error returned is *ValidationError.
func Normalize(agg *model.AggregatedDeal) (*model.ImportRecord, error) {
	if agg == nil {
		return nil, &ValidationError{Field: "record", Reason: "is nil"}
	}
	if agg.DealID == "" {
		return nil, &ValidationError{Field: "deal_id", Reason: "is missing"}
	}
	if agg.Storage.AggregatedJSON == "" {
		return nil, &ValidationError{Field: "storage.aggregated_json", Reason: "is missing"}
	}
	if agg.Composite == nil {
		return nil, &ValidationError{Field: "composite", Reason: "is missing"}
	}
	client, ok := subObject(agg.Composite, "client")
	if !ok {
		return nil, &ValidationError{Field: "composite.client", Reason: "is not an object"}
	}
	vehicle, ok := subObject(agg.Composite, "vehicle")
	if !ok {
		return nil, &ValidationError{Field: "composite.vehicle", Reason: "is not an object"}
	}
	deal, ok := subObject(agg.Composite, "deal")
	if !ok {
		return nil, &ValidationError{Field: "composite.deal", Reason: "is not an object"}
	}

	rec := &model.ImportRecord{
		DealID:     agg.DealID,
		FolderName: agg.FolderName,
		Client:     normalizeClient(client),
		Vehicle:    normalizeVehicle(vehicle),
		Deal:       normalizeDeal(deal, agg.DealID),
	}
	for _, doc := range agg.Documents {
		rec.Documents = append(rec.Documents, model.NormalizedDocument{
			FileName:    doc.FileName,
			Category:    doc.Category,
			StoragePath: doc.StoragePath,
			SizeBytes:   doc.SizeBytes,
		})
	}
	return rec, nil
}

func normalizeClient(src map[string]any) model.NormalizedClient {
	fullName := Clean(str(src, "full_name", "name"))
	first, last := SplitName(fullName)
	return model.NormalizedClient{
		FullName:     fullName,
		FirstName:    first,
		LastName:     last,
		Email:        Email(str(src, "email")),
		Phone:        Phone(str(src, "phone", "mobile")),
		EmiratesID:   Clean(str(src, "emirates_id")),
		PassportNo:   Clean(str(src, "passport_no", "passport_number")),
		Nationality:  Clean(str(src, "nationality")),
		DateOfBirth:  Date(str(src, "date_of_birth")),
		LicenseNo:    Clean(str(src, "driver_license", "driving_license_number", "license_no")),
		LicenseIssue: Date(str(src, "license_issue_date")),
		LicenseExp:   Date(str(src, "license_expiry_date")),
		Address:      Clean(str(src, "address")),
	}
}

func normalizeVehicle(src map[string]any) model.NormalizedVehicle {
	color := str(src, "color")
	if colors, ok := subObject(src, "colors"); ok {
		if exterior := str(colors, "exterior"); exterior != "" {
			color = exterior
		}
	}
	return model.NormalizedVehicle{
		VIN:          Clean(str(src, "vin", "chassis_number")),
		Make:         Clean(str(src, "make")),
		Model:        Clean(str(src, "model")),
		Year:         Num(val(src, "year")),
		Color:        Clean(color),
		PlateNumber:  Clean(str(src, "license_plate", "plate_number")),
		Mileage:      Num(val(src, "mileage")),
		EngineNumber: Clean(str(src, "engine_number")),
		RegExpiry:    Date(str(src, "registration_expiry")),
	}
}

func normalizeDeal(src map[string]any, dealID string) model.NormalizedDeal {
	return model.NormalizedDeal{
		DealID:          dealID,
		ApplicationRef:  ApplicationNumber(str(src, "external_id", "deal_id", "contract_number"), dealID),
		LeaseRef:        DealNumber(str(src, "deal_id", "contract_number")),
		VehiclePrice:    Num(val(src, "vehicle_price", "total_lease_value")),
		DownPayment:     Num(val(src, "down_payment", "initial_payment")),
		MonthlyPayment:  Num(val(src, "monthly_payment")),
		TermMonths:      Num(val(src, "lease_term_months", "term", "term_months")),
		InterestRate:    Num(val(src, "interest_rate")),
		LeaseStartDate:  Date(str(src, "lease_start", "lease_agreement_start_date", "lease_start_date")),
		LeaseEndDate:    Date(str(src, "lease_end", "lease_agreement_end_date", "lease_end_date")),
		ContractDate:    Date(str(src, "contract_date")),
		ResidualValue:   Num(val(src, "residual_value", "balloon_payment")),
		InsuranceAmount: Num(val(src, "insurance_amount")),
	}
}

// Clean trims a string and normalizes it to Unicode NFC. Scanned
// documents frequently yield decomposed accents.
func Clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Email lowercases a cleaned email address.
func Email(s string) string {
	return strings.ToLower(Clean(s))
}

// Phone strips everything outside [+0-9], turns a leading 00 into +, and
// prefixes a bare UAE country code with +. Anything else stays as plain
// digits.
func Phone(s string) string {
	var b strings.Builder
	for _, r := range Clean(s) {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "00"):
		return "+" + digits[2:]
	case strings.HasPrefix(digits, "+"):
		return digits
	case strings.HasPrefix(digits, "971"):
		return "+" + digits
	default:
		return digits
	}
}

// SplitName splits a full name into given name and surname. The last
// whitespace-separated token is the surname; a single token has none.
func SplitName(fullName string) (first, last string) {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

// ApplicationNumber derives the application identifier: APP- plus the
// source reference when it is a plain token, else APP- plus the first
// eight characters of the deal id.
func ApplicationNumber(ref, dealID string) string {
	ref = Clean(ref)
	if ref != "" && refPattern.MatchString(ref) {
		return "APP-" + ref
	}
	short := dealID
	if len(short) > 8 {
		short = short[:8]
	}
	return "APP-" + short
}

// DealNumber derives the lease identifier: LEASE- plus the source
// reference when it is a plain token, else LEASE- plus a random
// eight-character suffix.
func DealNumber(ref string) string {
	ref = Clean(ref)
	if ref != "" && refPattern.MatchString(ref) {
		return "LEASE-" + ref
	}
	return "LEASE-" + uuid.NewString()[:8]
}

// str returns the first key whose value is a non-empty string.
func str(src map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := src[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// val returns the first key holding a non-nil value.
func val(src map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := src[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func subObject(src map[string]any, key string) (map[string]any, bool) {
	v, ok := src[key]
	if !ok || v == nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}
