// Package importer writes normalized deal records into the platform
// database. A run is idempotent: every write is an upsert keyed on the
// entity's natural identifier, documents dedupe on storage path, and the
// import event is recorded at most once per aggregated artifact.
package importer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fastlease/deal-ingest/internal/model"
	"github.com/fastlease/deal-ingest/internal/normalize"
	"github.com/fastlease/deal-ingest/internal/storage"
	"github.com/fastlease/deal-ingest/internal/store"
)

// EventImported marks a deal as written from an aggregated artifact.
const EventImported = "imported_from_aggregated"

// ClientRole is the role granted to every imported account.
const ClientRole = "CLIENT"

// Importer persists normalized deal records through a Store.
type Importer struct {
	store       store.Store
	emailDomain string
	now         func() time.Time
}

// New builds an Importer. emailDomain is the host part of placeholder
// addresses minted for clients without a source email.
func New(st store.Store, emailDomain string) *Importer {
	if emailDomain == "" {
		emailDomain = "fastlease.local"
	}
	return &Importer{store: st, emailDomain: emailDomain, now: time.Now}
}

// Options controls a single import run.
type Options struct {
	// Force overwrites populated scalar columns instead of only
	// filling gaps.
	Force bool
}

// Result summarizes what one import run touched.
type Result struct {
	DealID            string `json:"deal_id"`
	UserID            string `json:"user_id"`
	VehicleID         string `json:"vehicle_id"`
	ApplicationID     string `json:"application_id"`
	DealStatus        string `json:"deal_status"`
	AccountCreated    bool   `json:"account_created"`
	DocumentsInserted int64  `json:"documents_inserted"`
	DocumentsSkipped  int    `json:"documents_skipped"`
	EventRecorded     bool   `json:"event_recorded"`
}

// StepError reports which import step failed. Steps before it have
// already committed; reruns pick up from a consistent state because every
// step is idempotent.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("import step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step string, err error) *StepError {
	return &StepError{Step: step, Err: err}
}

// Import writes one normalized record into the database.
func (im *Importer) Import(ctx context.Context, rec *model.ImportRecord, opts Options) (*Result, error) {
	if rec == nil || rec.DealID == "" {
		return nil, eris.New("importer: record missing deal id")
	}

	log := zap.L().With(zap.String("deal_id", rec.DealID))
	res := &Result{DealID: rec.DealID}

	userID, created, err := im.resolveAccount(ctx, rec)
	if err != nil {
		return nil, stepErr("account", err)
	}
	res.UserID = userID
	res.AccountCreated = created

	if err := im.upsertProfile(ctx, rec, userID, opts.Force); err != nil {
		return nil, stepErr("profile", err)
	}

	if err := im.store.EnsureUserRole(ctx, userID, ClientRole); err != nil {
		return nil, stepErr("role", err)
	}

	vehicleID, err := im.upsertVehicle(ctx, rec, opts.Force)
	if err != nil {
		return nil, stepErr("vehicle", err)
	}
	res.VehicleID = vehicleID

	appID, err := im.upsertApplication(ctx, rec, userID, vehicleID, opts.Force)
	if err != nil {
		return nil, stepErr("application", err)
	}
	res.ApplicationID = appID

	status, err := im.upsertDeal(ctx, rec, userID, vehicleID, appID, opts.Force)
	if err != nil {
		return nil, stepErr("deal", err)
	}
	res.DealStatus = status

	inserted, skipped, err := im.insertDocuments(ctx, rec)
	if err != nil {
		return nil, stepErr("documents", err)
	}
	res.DocumentsInserted = inserted
	res.DocumentsSkipped = skipped

	recorded, err := im.recordEvent(ctx, rec)
	if err != nil {
		return nil, stepErr("event", err)
	}
	res.EventRecorded = recorded

	log.Info("deal imported",
		zap.String("user_id", userID),
		zap.String("status", status),
		zap.Bool("account_created", created),
		zap.Int64("documents_inserted", inserted),
		zap.Int("documents_skipped", skipped))
	return res, nil
}

var emailLocalPattern = regexp.MustCompile(`[^0-9a-zA-Z]+`)

// placeholderEmail mints a deterministic-as-possible address for clients
// without one: the Emirates ID or phone, stripped to alphanumerics, keeps
// reruns resolving to the same account.
func (im *Importer) placeholderEmail(rec *model.ImportRecord) string {
	seed := rec.Client.EmiratesID
	if seed == "" {
		seed = rec.Client.Phone
	}
	if seed == "" {
		seed = uuid.NewString()
	}
	local := strings.ToLower(emailLocalPattern.ReplaceAllString(seed, ""))
	return fmt.Sprintf("import+%s@%s", local, im.emailDomain)
}

// resolveAccount finds the client's account by email, then Emirates ID,
// then phone, and creates one when nothing matches.
func (im *Importer) resolveAccount(ctx context.Context, rec *model.ImportRecord) (string, bool, error) {
	if id, err := im.store.FindAccountByEmail(ctx, rec.Client.Email); err != nil {
		return "", false, err
	} else if id != "" {
		return id, false, nil
	}
	if id, err := im.store.FindAccountByEmiratesID(ctx, rec.Client.EmiratesID); err != nil {
		return "", false, err
	} else if id != "" {
		return id, false, nil
	}
	if id, err := im.store.FindAccountByPhone(ctx, rec.Client.Phone); err != nil {
		return "", false, err
	} else if id != "" {
		return id, false, nil
	}

	email := rec.Client.Email
	if email == "" {
		email = im.placeholderEmail(rec)
	}
	id, err := im.store.CreateAccount(ctx, store.Account{
		Email:          email,
		Phone:          rec.Client.Phone,
		EmailConfirmed: false,
		Metadata: map[string]any{
			"source":         "deal-import",
			"import_deal_id": rec.DealID,
		},
	})
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (im *Importer) upsertProfile(ctx context.Context, rec *model.ImportRecord, userID string, force bool) error {
	first, last := rec.Client.FirstName, rec.Client.LastName
	if first == "" && last == "" {
		first, last = normalize.SplitName(rec.Client.FullName)
	}

	meta := map[string]any{
		"import_source":  "aggregated",
		"import_deal_id": rec.DealID,
		"imported_at":    im.now().UTC().Format(time.RFC3339),
	}
	if rec.Client.LicenseNo != "" {
		meta["driver_license_number"] = rec.Client.LicenseNo
	}
	if rec.Client.Email != "" {
		meta["primary_email"] = rec.Client.Email
	}
	if rec.Client.Phone != "" {
		meta["primary_phone"] = rec.Client.Phone
	}
	if rec.Client.PassportNo != "" {
		meta["passport_no"] = rec.Client.PassportNo
	}
	if rec.Client.Address != "" {
		meta["address"] = rec.Client.Address
	}

	return im.store.UpsertProfile(ctx, store.Profile{
		UserID:      userID,
		Status:      "active",
		FullName:    rec.Client.FullName,
		FirstName:   first,
		LastName:    last,
		Phone:       rec.Client.Phone,
		EmiratesID:  rec.Client.EmiratesID,
		Nationality: rec.Client.Nationality,
		DateOfBirth: rec.Client.DateOfBirth,
		Metadata:    meta,
	}, force)
}

func (im *Importer) upsertVehicle(ctx context.Context, rec *model.ImportRecord, force bool) (string, error) {
	if rec.Vehicle.VIN == "" {
		return "", eris.New("vehicle has no VIN")
	}
	features := map[string]any{
		"import_info": map[string]any{
			"source":         "aggregated",
			"import_deal_id": rec.DealID,
		},
	}
	if rec.Vehicle.RegExpiry != "" {
		features["registration_expiry"] = rec.Vehicle.RegExpiry
	}
	return im.store.UpsertVehicle(ctx, store.Vehicle{
		VIN:          rec.Vehicle.VIN,
		Make:         rec.Vehicle.Make,
		Model:        rec.Vehicle.Model,
		Year:         rec.Vehicle.Year,
		Color:        rec.Vehicle.Color,
		PlateNumber:  rec.Vehicle.PlateNumber,
		Mileage:      rec.Vehicle.Mileage,
		EngineNumber: rec.Vehicle.EngineNumber,
		Status:       "leased",
		Features:     features,
	}, force)
}

func (im *Importer) upsertApplication(ctx context.Context, rec *model.ImportRecord, userID, vehicleID string, force bool) (string, error) {
	status := "approved"
	if rec.Deal.LeaseStartDate != "" {
		status = "converted"
	}

	fin := map[string]any{}
	if rec.Deal.VehiclePrice != nil {
		fin["vehicle_price"] = *rec.Deal.VehiclePrice
	}
	if rec.Deal.ResidualValue != nil {
		fin["residual_value"] = *rec.Deal.ResidualValue
	}
	if rec.Deal.InsuranceAmount != nil {
		fin["insurance_amount"] = *rec.Deal.InsuranceAmount
	}

	return im.store.UpsertApplication(ctx, store.Application{
		ApplicationNumber: rec.Deal.ApplicationRef,
		UserID:            userID,
		VehicleID:         vehicleID,
		Status:            status,
		TermMonths:        rec.Deal.TermMonths,
		DownPayment:       rec.Deal.DownPayment,
		MonthlyPayment:    rec.Deal.MonthlyPayment,
		InterestRate:      rec.Deal.InterestRate,
		FinancialInfo:     fin,
	}, force)
}

// DeriveStatus maps the lease start date to the deal lifecycle status: a
// future start means the deal is still in signing, a past one means it is
// running, and no date at all means it was never activated.
func DeriveStatus(leaseStart string, now time.Time) string {
	if leaseStart == "" {
		return "NEW"
	}
	start, err := time.Parse("2006-01-02", leaseStart)
	if err != nil {
		return "NEW"
	}
	if start.After(now) {
		return "SIGNING_FUNDING"
	}
	return "ACTIVE"
}

func (im *Importer) upsertDeal(ctx context.Context, rec *model.ImportRecord, userID, vehicleID, appID string, force bool) (string, error) {
	status := DeriveStatus(rec.Deal.LeaseStartDate, im.now())

	terms := map[string]any{
		"source":       "aggregated",
		"storage_path": storage.AggregatedPath(rec.DealID),
		"folder":       rec.FolderName,
	}
	if rec.Deal.ContractDate != "" {
		terms["contract_date"] = rec.Deal.ContractDate
	}

	_, err := im.store.UpsertDeal(ctx, store.Deal{
		ID:             rec.DealID,
		DealNumber:     rec.Deal.LeaseRef,
		ApplicationID:  appID,
		VehicleID:      vehicleID,
		ClientID:       userID,
		Status:         status,
		MonthlyPayment: rec.Deal.MonthlyPayment,
		TermMonths:     rec.Deal.TermMonths,
		DownPayment:    rec.Deal.DownPayment,
		ContractStart:  rec.Deal.LeaseStartDate,
		ContractEnd:    rec.Deal.LeaseEndDate,
		ContractTerms:  terms,
	}, force)
	if err != nil {
		return "", err
	}
	return status, nil
}

// insertDocuments writes document references, skipping entries that never
// made it to the object store.
func (im *Importer) insertDocuments(ctx context.Context, rec *model.ImportRecord) (int64, int, error) {
	docs := make([]store.DealDocument, 0, len(rec.Documents))
	skipped := 0
	for _, doc := range rec.Documents {
		if doc.StoragePath == "" {
			skipped++
			continue
		}
		docs = append(docs, store.DealDocument{
			DealID:       rec.DealID,
			Title:        doc.FileName,
			DocumentType: string(doc.Category),
			Status:       "ingested",
			StoragePath:  doc.StoragePath,
		})
	}

	inserted, err := im.store.InsertDealDocuments(ctx, docs)
	if err != nil {
		return 0, 0, err
	}
	return inserted, skipped, nil
}

// recordEvent writes the import event once per aggregated artifact.
func (im *Importer) recordEvent(ctx context.Context, rec *model.ImportRecord) (bool, error) {
	path := storage.AggregatedPath(rec.DealID)
	exists, err := im.store.DealEventExists(ctx, rec.DealID, EventImported, path)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	err = im.store.InsertDealEvent(ctx, store.DealEvent{
		DealID:    rec.DealID,
		EventType: EventImported,
		Payload: map[string]any{
			"storage_path": path,
			"folder":       rec.FolderName,
			"imported_at":  im.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
