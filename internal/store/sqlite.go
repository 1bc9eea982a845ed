package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and tests; production runs Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS accounts (
	id              TEXT PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	phone           TEXT,
	email_confirmed INTEGER NOT NULL DEFAULT 0,
	metadata        TEXT NOT NULL DEFAULT '{}',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS profiles (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL UNIQUE REFERENCES accounts(id),
	status        TEXT NOT NULL DEFAULT 'active',
	full_name     TEXT,
	first_name    TEXT,
	last_name     TEXT,
	phone         TEXT,
	emirates_id   TEXT,
	nationality   TEXT,
	date_of_birth TEXT,
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_emirates_id ON profiles(emirates_id) WHERE emirates_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_profiles_phone ON profiles(phone);

CREATE TABLE IF NOT EXISTS user_roles (
	user_id TEXT NOT NULL REFERENCES accounts(id),
	role    TEXT NOT NULL,
	PRIMARY KEY (user_id, role)
);

CREATE TABLE IF NOT EXISTS vehicles (
	id            TEXT PRIMARY KEY,
	vin           TEXT NOT NULL UNIQUE,
	make          TEXT,
	model         TEXT,
	year          REAL,
	color         TEXT,
	plate_number  TEXT,
	mileage       REAL,
	engine_number TEXT,
	status        TEXT NOT NULL DEFAULT 'leased',
	features      TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS applications (
	id                 TEXT PRIMARY KEY,
	application_number TEXT NOT NULL UNIQUE,
	user_id            TEXT NOT NULL REFERENCES accounts(id),
	vehicle_id         TEXT NOT NULL REFERENCES vehicles(id),
	status             TEXT NOT NULL DEFAULT 'approved',
	term_months        REAL,
	down_payment       REAL,
	monthly_payment    REAL,
	interest_rate      REAL,
	financial_info     TEXT NOT NULL DEFAULT '{}',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS deals (
	id                  TEXT PRIMARY KEY,
	deal_number         TEXT NOT NULL UNIQUE,
	application_id      TEXT NOT NULL REFERENCES applications(id),
	vehicle_id          TEXT NOT NULL REFERENCES vehicles(id),
	client_id           TEXT NOT NULL REFERENCES accounts(id),
	status              TEXT NOT NULL DEFAULT 'NEW',
	monthly_payment     REAL,
	term_months         REAL,
	down_payment_amount REAL,
	contract_start_date TEXT,
	contract_end_date   TEXT,
	contract_terms      TEXT NOT NULL DEFAULT '{}',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS deal_documents (
	id            TEXT PRIMARY KEY,
	deal_id       TEXT NOT NULL REFERENCES deals(id),
	title         TEXT NOT NULL,
	document_type TEXT,
	status        TEXT NOT NULL DEFAULT 'ingested',
	storage_path  TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (deal_id, storage_path)
);

CREATE TABLE IF NOT EXISTS deal_events (
	id         TEXT PRIMARY KEY,
	deal_id    TEXT NOT NULL REFERENCES deals(id),
	event_type TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_deal_documents_deal_id ON deal_documents(deal_id);
CREATE INDEX IF NOT EXISTS idx_deal_events_deal_id ON deal_events(deal_id);
CREATE INDEX IF NOT EXISTS idx_deal_events_type ON deal_events(deal_id, event_type);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindAccountByEmail(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", nil
	}
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE email = ?`, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: find account by email")
	}
	return id, nil
}

func (s *SQLiteStore) FindAccountByEmiratesID(ctx context.Context, emiratesID string) (string, error) {
	if emiratesID == "" {
		return "", nil
	}
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM profiles WHERE emirates_id = ?`, emiratesID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: find account by emirates id")
	}
	return userID, nil
}

func (s *SQLiteStore) FindAccountByPhone(ctx context.Context, phone string) (string, error) {
	if phone == "" {
		return "", nil
	}
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM profiles WHERE phone = ?`, phone).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: find account by phone")
	}
	return userID, nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, acc Account) (string, error) {
	id := acc.ID
	if id == "" {
		id = uuid.New().String()
	}
	metaJSON, err := marshalMap(acc.Metadata)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal account metadata")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, phone, email_confirmed, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, acc.Email, nullStr(acc.Phone), acc.EmailConfirmed, string(metaJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert account")
	}
	return id, nil
}

// sqliteAssign mirrors assign for SQLite's excluded pseudo-table.
func sqliteAssign(table, col string, force bool) string {
	if force {
		return fmt.Sprintf("%s = excluded.%s", col, col)
	}
	return fmt.Sprintf("%s = COALESCE(%s.%s, excluded.%s)", col, table, col, col)
}

func sqliteAssignAll(table string, cols []string, force bool) string {
	out := ""
	for i, col := range cols {
		if i > 0 {
			out += ", "
		}
		out += sqliteAssign(table, col, force)
	}
	return out
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, p Profile, force bool) error {
	metaJSON, err := marshalMap(p.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile metadata")
	}

	query := fmt.Sprintf(
		`INSERT INTO profiles (id, user_id, status, full_name, first_name, last_name, phone, emirates_id, nationality, date_of_birth, metadata, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   status = excluded.status,
		   %s,
		   metadata = json_patch(profiles.metadata, excluded.metadata),
		   updated_at = excluded.updated_at`,
		sqliteAssignAll("profiles", []string{"full_name", "first_name", "last_name", "phone", "emirates_id", "nationality", "date_of_birth"}, force),
	)

	_, err = s.db.ExecContext(ctx, query,
		uuid.New().String(), p.UserID, p.Status,
		nullStr(p.FullName), nullStr(p.FirstName), nullStr(p.LastName),
		nullStr(p.Phone), nullStr(p.EmiratesID), nullStr(p.Nationality),
		nullStr(p.DateOfBirth), string(metaJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert profile %s", p.UserID)
}

func (s *SQLiteStore) EnsureUserRole(ctx context.Context, userID, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`,
		userID, role,
	)
	return eris.Wrapf(err, "sqlite: ensure role %s for %s", role, userID)
}

func (s *SQLiteStore) UpsertVehicle(ctx context.Context, v Vehicle, force bool) (string, error) {
	featJSON, err := marshalMap(v.Features)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal vehicle features")
	}

	query := fmt.Sprintf(
		`INSERT INTO vehicles (id, vin, make, model, year, color, plate_number, mileage, engine_number, status, features, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (vin) DO UPDATE SET
		   %s,
		   status = excluded.status,
		   features = json_patch(vehicles.features, excluded.features),
		   updated_at = excluded.updated_at`,
		sqliteAssignAll("vehicles", []string{"make", "model", "year", "color", "plate_number", "mileage", "engine_number"}, force),
	)

	_, err = s.db.ExecContext(ctx, query,
		uuid.New().String(), v.VIN,
		nullStr(v.Make), nullStr(v.Model), v.Year, nullStr(v.Color),
		nullStr(v.PlateNumber), v.Mileage, nullStr(v.EngineNumber),
		v.Status, string(featJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: upsert vehicle %s", v.VIN)
	}

	var id string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM vehicles WHERE vin = ?`, v.VIN).Scan(&id); err != nil {
		return "", eris.Wrapf(err, "sqlite: load vehicle id for %s", v.VIN)
	}
	return id, nil
}

func (s *SQLiteStore) UpsertApplication(ctx context.Context, a Application, force bool) (string, error) {
	finJSON, err := marshalMap(a.FinancialInfo)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal financial info")
	}

	query := fmt.Sprintf(
		`INSERT INTO applications (id, application_number, user_id, vehicle_id, status, term_months, down_payment, monthly_payment, interest_rate, financial_info, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (application_number) DO UPDATE SET
		   user_id = excluded.user_id,
		   vehicle_id = excluded.vehicle_id,
		   status = excluded.status,
		   %s,
		   financial_info = json_patch(applications.financial_info, excluded.financial_info),
		   updated_at = excluded.updated_at`,
		sqliteAssignAll("applications", []string{"term_months", "down_payment", "monthly_payment", "interest_rate"}, force),
	)

	_, err = s.db.ExecContext(ctx, query,
		uuid.New().String(), a.ApplicationNumber, a.UserID, a.VehicleID, a.Status,
		a.TermMonths, a.DownPayment, a.MonthlyPayment, a.InterestRate,
		string(finJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: upsert application %s", a.ApplicationNumber)
	}

	var id string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM applications WHERE application_number = ?`, a.ApplicationNumber).Scan(&id); err != nil {
		return "", eris.Wrapf(err, "sqlite: load application id for %s", a.ApplicationNumber)
	}
	return id, nil
}

func (s *SQLiteStore) UpsertDeal(ctx context.Context, d Deal, force bool) (string, error) {
	termsJSON, err := marshalMap(d.ContractTerms)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal contract terms")
	}

	query := fmt.Sprintf(
		`INSERT INTO deals (id, deal_number, application_id, vehicle_id, client_id, status, monthly_payment, term_months, down_payment_amount, contract_start_date, contract_end_date, contract_terms, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   application_id = excluded.application_id,
		   vehicle_id = excluded.vehicle_id,
		   client_id = excluded.client_id,
		   status = excluded.status,
		   %s,
		   contract_terms = json_patch(deals.contract_terms, excluded.contract_terms),
		   updated_at = excluded.updated_at`,
		sqliteAssignAll("deals", []string{"deal_number", "monthly_payment", "term_months", "down_payment_amount", "contract_start_date", "contract_end_date"}, force),
	)

	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.DealNumber, d.ApplicationID, d.VehicleID, d.ClientID, d.Status,
		d.MonthlyPayment, d.TermMonths, d.DownPayment,
		nullStr(d.ContractStart), nullStr(d.ContractEnd),
		string(termsJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: upsert deal %s", d.ID)
	}
	return d.ID, nil
}

func (s *SQLiteStore) InsertDealDocuments(ctx context.Context, docs []DealDocument) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	var inserted int64
	now := time.Now().UTC()
	for _, doc := range docs {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO deal_documents (id, deal_id, title, document_type, status, storage_path, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), doc.DealID, doc.Title,
			nullStr(doc.DocumentType), doc.Status, doc.StoragePath, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert deal document %s", doc.StoragePath)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return inserted, nil
}

func (s *SQLiteStore) DealEventExists(ctx context.Context, dealID, eventType, storagePath string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM deal_events WHERE deal_id = ? AND event_type = ? AND json_extract(payload, '$.storage_path') = ? LIMIT 1`,
		dealID, eventType, storagePath,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check deal event")
	}
	return true, nil
}

func (s *SQLiteStore) InsertDealEvent(ctx context.Context, ev DealEvent) error {
	payloadJSON, err := marshalMap(ev.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal event payload")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deal_events (id, deal_id, event_type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), ev.DealID, ev.EventType, string(payloadJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert deal event for %s", ev.DealID)
}
