package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/fastlease/deal-ingest/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Statement names for the hot lookup queries. They are prepared on each
// new connection and executed by name.
const (
	stmtFindAccountByEmail = "find_account_by_email"
	stmtFindByEmiratesID   = "find_by_emirates_id"
	stmtFindByPhone        = "find_by_phone"
	stmtDealEventExists    = "deal_event_exists"
)

var preparedStatements = map[string]string{
	stmtFindAccountByEmail: `SELECT id FROM accounts WHERE email = $1`,
	stmtFindByEmiratesID:   `SELECT user_id FROM profiles WHERE emirates_id = $1`,
	stmtFindByPhone:        `SELECT user_id FROM profiles WHERE phone = $1`,
	stmtDealEventExists:    `SELECT 1 FROM deal_events WHERE deal_id = $1 AND event_type = $2 AND payload->>'storage_path' = $3 LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that
// need direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS accounts (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	email           TEXT NOT NULL UNIQUE,
	phone           TEXT,
	email_confirmed BOOLEAN NOT NULL DEFAULT false,
	metadata        JSONB NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS profiles (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id       TEXT NOT NULL UNIQUE REFERENCES accounts(id),
	status        TEXT NOT NULL DEFAULT 'active',
	full_name     TEXT,
	first_name    TEXT,
	last_name     TEXT,
	phone         TEXT,
	emirates_id   TEXT,
	nationality   TEXT,
	date_of_birth DATE,
	metadata      JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_emirates_id ON profiles(emirates_id) WHERE emirates_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_profiles_phone ON profiles(phone);

CREATE TABLE IF NOT EXISTS user_roles (
	user_id TEXT NOT NULL REFERENCES accounts(id),
	role    TEXT NOT NULL,
	PRIMARY KEY (user_id, role)
);

CREATE TABLE IF NOT EXISTS vehicles (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	vin           TEXT NOT NULL UNIQUE,
	make          TEXT,
	model         TEXT,
	year          NUMERIC,
	color         TEXT,
	plate_number  TEXT,
	mileage       NUMERIC,
	engine_number TEXT,
	status        TEXT NOT NULL DEFAULT 'leased',
	features      JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS applications (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	application_number TEXT NOT NULL UNIQUE,
	user_id            TEXT NOT NULL REFERENCES accounts(id),
	vehicle_id         TEXT NOT NULL REFERENCES vehicles(id),
	status             TEXT NOT NULL DEFAULT 'approved',
	term_months        NUMERIC,
	down_payment       NUMERIC,
	monthly_payment    NUMERIC,
	interest_rate      NUMERIC,
	financial_info     JSONB NOT NULL DEFAULT '{}',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deals (
	id                  TEXT PRIMARY KEY,
	deal_number         TEXT NOT NULL UNIQUE,
	application_id      TEXT NOT NULL REFERENCES applications(id),
	vehicle_id          TEXT NOT NULL REFERENCES vehicles(id),
	client_id           TEXT NOT NULL REFERENCES accounts(id),
	status              TEXT NOT NULL DEFAULT 'NEW',
	monthly_payment     NUMERIC,
	term_months         NUMERIC,
	down_payment_amount NUMERIC,
	contract_start_date DATE,
	contract_end_date   DATE,
	contract_terms      JSONB NOT NULL DEFAULT '{}',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deal_documents (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	deal_id       TEXT NOT NULL REFERENCES deals(id),
	title         TEXT NOT NULL,
	document_type TEXT,
	status        TEXT NOT NULL DEFAULT 'ingested',
	storage_path  TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (deal_id, storage_path)
);

CREATE TABLE IF NOT EXISTS deal_events (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	deal_id    TEXT NOT NULL REFERENCES deals(id),
	event_type TEXT NOT NULL,
	payload    JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_deal_documents_deal_id ON deal_documents(deal_id);
CREATE INDEX IF NOT EXISTS idx_deal_events_deal_id ON deal_events(deal_id);
CREATE INDEX IF NOT EXISTS idx_deal_events_type ON deal_events(deal_id, event_type);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindAccountByEmail(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", nil
	}
	var id string
	err := s.pool.QueryRow(ctx, stmtFindAccountByEmail, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: find account by email")
	}
	return id, nil
}

func (s *PostgresStore) FindAccountByEmiratesID(ctx context.Context, emiratesID string) (string, error) {
	if emiratesID == "" {
		return "", nil
	}
	var userID string
	err := s.pool.QueryRow(ctx, stmtFindByEmiratesID, emiratesID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: find account by emirates id")
	}
	return userID, nil
}

func (s *PostgresStore) FindAccountByPhone(ctx context.Context, phone string) (string, error) {
	if phone == "" {
		return "", nil
	}
	var userID string
	err := s.pool.QueryRow(ctx, stmtFindByPhone, phone).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: find account by phone")
	}
	return userID, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, acc Account) (string, error) {
	id := acc.ID
	if id == "" {
		id = uuid.New().String()
	}
	metaJSON, err := marshalMap(acc.Metadata)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal account metadata")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, phone, email_confirmed, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, acc.Email, nullStr(acc.Phone), acc.EmailConfirmed, metaJSON, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert account")
	}
	return id, nil
}

// assign builds one ON CONFLICT SET clause. Force overwrites the stored
// column; otherwise existing values win and only gaps are filled.
func assign(table, col string, force bool) string {
	if force {
		return fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}
	return fmt.Sprintf("%s = COALESCE(%s.%s, EXCLUDED.%s)", col, table, col, col)
}

func assignAll(table string, cols []string, force bool) string {
	out := make([]string, len(cols))
	for i, col := range cols {
		out[i] = assign(table, col, force)
	}
	return strings.Join(out, ", ")
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p Profile, force bool) error {
	metaJSON, err := marshalMap(p.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile metadata")
	}

	query := fmt.Sprintf(
		`INSERT INTO profiles (id, user_id, status, full_name, first_name, last_name, phone, emirates_id, nationality, date_of_birth, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		 ON CONFLICT (user_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   %s,
		   metadata = profiles.metadata || EXCLUDED.metadata,
		   updated_at = EXCLUDED.updated_at`,
		assignAll("profiles", []string{"full_name", "first_name", "last_name", "phone", "emirates_id", "nationality", "date_of_birth"}, force),
	)

	_, err = s.pool.Exec(ctx, query,
		uuid.New().String(), p.UserID, p.Status,
		nullStr(p.FullName), nullStr(p.FirstName), nullStr(p.LastName),
		nullStr(p.Phone), nullStr(p.EmiratesID), nullStr(p.Nationality),
		nullStr(p.DateOfBirth), metaJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert profile %s", p.UserID)
}

func (s *PostgresStore) EnsureUserRole(ctx context.Context, userID, role string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT (user_id, role) DO NOTHING`,
		userID, role,
	)
	return eris.Wrapf(err, "postgres: ensure role %s for %s", role, userID)
}

func (s *PostgresStore) UpsertVehicle(ctx context.Context, v Vehicle, force bool) (string, error) {
	featJSON, err := marshalMap(v.Features)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal vehicle features")
	}

	query := fmt.Sprintf(
		`INSERT INTO vehicles (id, vin, make, model, year, color, plate_number, mileage, engine_number, status, features, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		 ON CONFLICT (vin) DO UPDATE SET
		   %s,
		   status = EXCLUDED.status,
		   features = vehicles.features || EXCLUDED.features,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		assignAll("vehicles", []string{"make", "model", "year", "color", "plate_number", "mileage", "engine_number"}, force),
	)

	var id string
	err = s.pool.QueryRow(ctx, query,
		uuid.New().String(), v.VIN,
		nullStr(v.Make), nullStr(v.Model), v.Year, nullStr(v.Color),
		nullStr(v.PlateNumber), v.Mileage, nullStr(v.EngineNumber),
		v.Status, featJSON, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: upsert vehicle %s", v.VIN)
	}
	return id, nil
}

func (s *PostgresStore) UpsertApplication(ctx context.Context, a Application, force bool) (string, error) {
	finJSON, err := marshalMap(a.FinancialInfo)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal financial info")
	}

	query := fmt.Sprintf(
		`INSERT INTO applications (id, application_number, user_id, vehicle_id, status, term_months, down_payment, monthly_payment, interest_rate, financial_info, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		 ON CONFLICT (application_number) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   vehicle_id = EXCLUDED.vehicle_id,
		   status = EXCLUDED.status,
		   %s,
		   financial_info = applications.financial_info || EXCLUDED.financial_info,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		assignAll("applications", []string{"term_months", "down_payment", "monthly_payment", "interest_rate"}, force),
	)

	var id string
	err = s.pool.QueryRow(ctx, query,
		uuid.New().String(), a.ApplicationNumber, a.UserID, a.VehicleID, a.Status,
		a.TermMonths, a.DownPayment, a.MonthlyPayment, a.InterestRate,
		finJSON, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: upsert application %s", a.ApplicationNumber)
	}
	return id, nil
}

func (s *PostgresStore) UpsertDeal(ctx context.Context, d Deal, force bool) (string, error) {
	termsJSON, err := marshalMap(d.ContractTerms)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal contract terms")
	}

	query := fmt.Sprintf(
		`INSERT INTO deals (id, deal_number, application_id, vehicle_id, client_id, status, monthly_payment, term_months, down_payment_amount, contract_start_date, contract_end_date, contract_terms, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		 ON CONFLICT (id) DO UPDATE SET
		   application_id = EXCLUDED.application_id,
		   vehicle_id = EXCLUDED.vehicle_id,
		   client_id = EXCLUDED.client_id,
		   status = EXCLUDED.status,
		   %s,
		   contract_terms = deals.contract_terms || EXCLUDED.contract_terms,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		assignAll("deals", []string{"deal_number", "monthly_payment", "term_months", "down_payment_amount", "contract_start_date", "contract_end_date"}, force),
	)

	var id string
	err = s.pool.QueryRow(ctx, query,
		d.ID, d.DealNumber, d.ApplicationID, d.VehicleID, d.ClientID, d.Status,
		d.MonthlyPayment, d.TermMonths, d.DownPayment,
		nullStr(d.ContractStart), nullStr(d.ContractEnd),
		termsJSON, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: upsert deal %s", d.ID)
	}
	return id, nil
}

// InsertDealDocuments bulk-inserts document rows, silently skipping ones
// already present for their (deal id, storage path) pair.
func (s *PostgresStore) InsertDealDocuments(ctx context.Context, docs []DealDocument) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, []any{
			uuid.New().String(), doc.DealID, doc.Title,
			nullStr(doc.DocumentType), doc.Status, doc.StoragePath, now,
		})
	}

	inserted, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "deal_documents",
		Columns:      []string{"id", "deal_id", "title", "document_type", "status", "storage_path", "created_at"},
		ConflictKeys: []string{"deal_id", "storage_path"},
		DoNothing:    true,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert deal documents")
	}
	return inserted, nil
}

func (s *PostgresStore) DealEventExists(ctx context.Context, dealID, eventType, storagePath string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, stmtDealEventExists, dealID, eventType, storagePath).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: check deal event")
	}
	return true, nil
}

func (s *PostgresStore) InsertDealEvent(ctx context.Context, ev DealEvent) error {
	payloadJSON, err := marshalMap(ev.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal event payload")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO deal_events (id, deal_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), ev.DealID, ev.EventType, payloadJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: insert deal event for %s", ev.DealID)
}

// nullStr maps "" to NULL so gap-fill upserts can tell absent from set.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// marshalMap encodes a metadata map, defaulting to an empty object.
func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
