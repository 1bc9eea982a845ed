package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "deal-ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedAccount(t *testing.T, s *SQLiteStore, email string) string {
	t.Helper()
	id, err := s.CreateAccount(context.Background(), Account{
		Email:    email,
		Metadata: map[string]any{"source": "deal-import"},
	})
	require.NoError(t, err)
	return id
}

func TestSQLiteAccountLookups(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id := seedAccount(t, s, "ahmed@example.com")

	found, err := s.FindAccountByEmail(ctx, "ahmed@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	found, err = s.FindAccountByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = s.FindAccountByEmail(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLiteProfileLookups(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id := seedAccount(t, s, "ahmed@example.com")
	require.NoError(t, s.UpsertProfile(ctx, Profile{
		UserID:     id,
		Status:     "active",
		Phone:      "+971501234567",
		EmiratesID: "784-1985-1234567-1",
	}, false))

	found, err := s.FindAccountByEmiratesID(ctx, "784-1985-1234567-1")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	found, err = s.FindAccountByPhone(ctx, "+971501234567")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	found, err = s.FindAccountByPhone(ctx, "+971000000000")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLiteUpsertProfile_GapFill(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id := seedAccount(t, s, "ahmed@example.com")
	require.NoError(t, s.UpsertProfile(ctx, Profile{
		UserID:      id,
		Status:      "active",
		FullName:    "Ahmed Al Mansoori",
		Nationality: "UAE",
	}, false))

	// Without force the stored nationality wins and gaps get filled.
	require.NoError(t, s.UpsertProfile(ctx, Profile{
		UserID:      id,
		Status:      "active",
		Nationality: "Oman",
		Phone:       "+971501234567",
	}, false))

	var nationality, phone string
	err := s.db.QueryRowContext(ctx,
		`SELECT nationality, phone FROM profiles WHERE user_id = ?`, id,
	).Scan(&nationality, &phone)
	require.NoError(t, err)
	assert.Equal(t, "UAE", nationality)
	assert.Equal(t, "+971501234567", phone)
}

func TestSQLiteUpsertProfile_Force(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id := seedAccount(t, s, "ahmed@example.com")
	require.NoError(t, s.UpsertProfile(ctx, Profile{
		UserID: id, Status: "active", Nationality: "UAE",
	}, false))
	require.NoError(t, s.UpsertProfile(ctx, Profile{
		UserID: id, Status: "active", Nationality: "Oman",
	}, true))

	var nationality string
	err := s.db.QueryRowContext(ctx,
		`SELECT nationality FROM profiles WHERE user_id = ?`, id,
	).Scan(&nationality)
	require.NoError(t, err)
	assert.Equal(t, "Oman", nationality)
}

func TestSQLiteUpsertProfile_MetadataMerged(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id := seedAccount(t, s, "ahmed@example.com")
	require.NoError(t, s.UpsertProfile(ctx, Profile{
		UserID: id, Status: "active",
		Metadata: map[string]any{"import_source": "aggregated"},
	}, false))
	require.NoError(t, s.UpsertProfile(ctx, Profile{
		UserID: id, Status: "active",
		Metadata: map[string]any{"import_deal_id": "deal-1"},
	}, false))

	var meta string
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata FROM profiles WHERE user_id = ?`, id,
	).Scan(&meta)
	require.NoError(t, err)
	assert.JSONEq(t, `{"import_source":"aggregated","import_deal_id":"deal-1"}`, meta)
}

func TestSQLiteEnsureUserRole_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id := seedAccount(t, s, "ahmed@example.com")
	require.NoError(t, s.EnsureUserRole(ctx, id, "CLIENT"))
	require.NoError(t, s.EnsureUserRole(ctx, id, "CLIENT"))

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE user_id = ?`, id,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteUpsertVehicle_StableID(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	year := 2023.0
	first, err := s.UpsertVehicle(ctx, Vehicle{
		VIN: "WBA1234567890", Make: "BMW", Year: &year, Status: "leased",
	}, false)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := s.UpsertVehicle(ctx, Vehicle{
		VIN: "WBA1234567890", Model: "X5", Status: "leased",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var mk, model string
	err = s.db.QueryRowContext(ctx,
		`SELECT make, model FROM vehicles WHERE id = ?`, first,
	).Scan(&mk, &model)
	require.NoError(t, err)
	assert.Equal(t, "BMW", mk)
	assert.Equal(t, "X5", model)
}

func TestSQLiteUpsertApplicationAndDeal(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	userID := seedAccount(t, s, "ahmed@example.com")
	vehID, err := s.UpsertVehicle(ctx, Vehicle{VIN: "WBA1234567890", Status: "leased"}, false)
	require.NoError(t, err)

	term := 36.0
	appID, err := s.UpsertApplication(ctx, Application{
		ApplicationNumber: "APP-REF-001",
		UserID:            userID,
		VehicleID:         vehID,
		Status:            "converted",
		TermMonths:        &term,
	}, false)
	require.NoError(t, err)
	require.NotEmpty(t, appID)

	again, err := s.UpsertApplication(ctx, Application{
		ApplicationNumber: "APP-REF-001",
		UserID:            userID,
		VehicleID:         vehID,
		Status:            "converted",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, appID, again)

	dealID, err := s.UpsertDeal(ctx, Deal{
		ID:            "deal-1",
		DealNumber:    "LEASE-C-9",
		ApplicationID: appID,
		VehicleID:     vehID,
		ClientID:      userID,
		Status:        "ACTIVE",
		ContractStart: "2024-01-01",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "deal-1", dealID)

	var status, start string
	err = s.db.QueryRowContext(ctx,
		`SELECT status, contract_start_date FROM deals WHERE id = ?`, dealID,
	).Scan(&status, &start)
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", status)
	assert.Equal(t, "2024-01-01", start)
}

func TestSQLiteInsertDealDocuments_Dedupes(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	userID := seedAccount(t, s, "ahmed@example.com")
	vehID, err := s.UpsertVehicle(ctx, Vehicle{VIN: "WBA1234567890", Status: "leased"}, false)
	require.NoError(t, err)
	appID, err := s.UpsertApplication(ctx, Application{
		ApplicationNumber: "APP-REF-001", UserID: userID, VehicleID: vehID, Status: "approved",
	}, false)
	require.NoError(t, err)
	_, err = s.UpsertDeal(ctx, Deal{
		ID: "deal-1", DealNumber: "LEASE-1", ApplicationID: appID,
		VehicleID: vehID, ClientID: userID, Status: "NEW",
	}, false)
	require.NoError(t, err)

	docs := []DealDocument{
		{DealID: "deal-1", Title: "passport.pdf", DocumentType: "client", Status: "ingested", StoragePath: "deal-1/client/passport_pdf.pdf"},
		{DealID: "deal-1", Title: "contract.pdf", DocumentType: "deal", Status: "ingested", StoragePath: "deal-1/deal/contract_pdf.pdf"},
	}

	n, err := s.InsertDealDocuments(ctx, docs)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Re-running the same batch inserts nothing new.
	n, err = s.InsertDealDocuments(ctx, docs)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.InsertDealDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteDealEvents(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	userID := seedAccount(t, s, "ahmed@example.com")
	vehID, err := s.UpsertVehicle(ctx, Vehicle{VIN: "WBA1234567890", Status: "leased"}, false)
	require.NoError(t, err)
	appID, err := s.UpsertApplication(ctx, Application{
		ApplicationNumber: "APP-REF-001", UserID: userID, VehicleID: vehID, Status: "approved",
	}, false)
	require.NoError(t, err)
	_, err = s.UpsertDeal(ctx, Deal{
		ID: "deal-1", DealNumber: "LEASE-1", ApplicationID: appID,
		VehicleID: vehID, ClientID: userID, Status: "NEW",
	}, false)
	require.NoError(t, err)

	found, err := s.DealEventExists(ctx, "deal-1", "imported_from_aggregated", "deal-1/aggregated.json")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.InsertDealEvent(ctx, DealEvent{
		DealID:    "deal-1",
		EventType: "imported_from_aggregated",
		Payload:   map[string]any{"storage_path": "deal-1/aggregated.json", "folder": "AHMED_DEAL"},
	}))

	found, err = s.DealEventExists(ctx, "deal-1", "imported_from_aggregated", "deal-1/aggregated.json")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.DealEventExists(ctx, "deal-1", "imported_from_aggregated", "deal-2/aggregated.json")
	require.NoError(t, err)
	assert.False(t, found)
}
