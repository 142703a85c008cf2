// Package db handles SQLite initialisation and schema migrations.
//
// The driver is modernc.org/sqlite — a pure-Go port of SQLite. No CGo means
// no C compiler on the build machine and clean cross-compilation; the driver
// registers itself with database/sql under the name "sqlite".
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at dsn and runs all migrations.
//
// Recommended DSN formats:
//   - Production file: "marathon.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
//   - Tests:           "file:testXYZ?mode=memory&cache=shared&_foreign_keys=on"
//
// Pragmas are passed as URI parameters so every connection from the pool
// gets them applied, not just the first.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// migrate runs each DDL statement in the schema individually. The sqlite
// driver executes only the first statement of a multi-statement Exec, so we
// split on ";" and loop.
func migrate(db *sql.DB) error {
	stmts := strings.Split(schema, ";")
	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// schema contains every CREATE statement for the application.
//
//	participants  — one row per runner, created at submission. Email and
//	                phone are each globally unique (duplicate identity is
//	                rejected before insert; the constraints are the backstop).
//
//	transactions  — one payment attempt, 1:1 with a registration.
//	                gateway_order_id is NULL until the order is issued;
//	                UNIQUE allows many NULLs but never two equal order ids.
//	                Lifecycle metadata lives in fixed columns, not a blob.
//
//	registrations — the central entity. bib_number stays NULL until the
//	                idempotent confirmation step wins its compare-and-set
//	                write. UNIQUE(race_category, bib_number) is the hard
//	                guarantee that no two runners in a category ever share
//	                a bib, whatever races the allocation logic loses.
const schema = `
CREATE TABLE IF NOT EXISTS participants (
    id                      TEXT PRIMARY KEY,
    registration_id         TEXT NOT NULL UNIQUE,
    first_name              TEXT NOT NULL,
    last_name               TEXT NOT NULL,
    email                   TEXT NOT NULL UNIQUE,
    phone                   TEXT NOT NULL UNIQUE,
    age                     INTEGER NOT NULL CHECK(age BETWEEN 16 AND 80),
    gender                  TEXT NOT NULL CHECK(gender IN ('Male','Female','Other')),
    race_category           TEXT NOT NULL CHECK(race_category IN ('5K','10K')),
    emergency_contact_name  TEXT NOT NULL,
    emergency_contact_phone TEXT NOT NULL,
    medical_conditions      TEXT NOT NULL DEFAULT '',
    tshirt_size             TEXT NOT NULL CHECK(tshirt_size IN ('M','L','XL','XXL')),
    street                  TEXT NOT NULL,
    city                    TEXT NOT NULL,
    state                   TEXT NOT NULL,
    pincode                 TEXT NOT NULL,
    terms_accepted          INTEGER NOT NULL DEFAULT 0,
    waiver                  INTEGER NOT NULL DEFAULT 0,
    created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS transactions (
    id                  TEXT PRIMARY KEY,
    participant_id      TEXT NOT NULL REFERENCES participants(id),
    registration_id     TEXT NOT NULL,
    gateway_order_id    TEXT UNIQUE,
    gateway_payment_id  TEXT,
    gateway_signature   TEXT,
    amount_paise        INTEGER NOT NULL CHECK(amount_paise IN (33300, 55500)),
    currency            TEXT NOT NULL DEFAULT 'INR' CHECK(currency = 'INR'),
    status              TEXT NOT NULL DEFAULT 'created'
                            CHECK(status IN ('created','attempted','paid','failed','refunded')),
    race_category       TEXT NOT NULL CHECK(race_category IN ('5K','10K')),
    payment_method      TEXT NOT NULL DEFAULT '',
    failure_reason      TEXT NOT NULL DEFAULT '',
    webhook_verified    INTEGER NOT NULL DEFAULT 0,
    client_ip           TEXT NOT NULL DEFAULT '',
    user_agent          TEXT NOT NULL DEFAULT '',
    order_created_at    DATETIME,
    paid_at             DATETIME,
    failed_at           DATETIME,
    webhook_received_at DATETIME,
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transactions_registration ON transactions(registration_id);

CREATE TABLE IF NOT EXISTS registrations (
    registration_id         TEXT PRIMARY KEY,
    participant_id          TEXT NOT NULL UNIQUE REFERENCES participants(id),
    transaction_id          TEXT NOT NULL UNIQUE REFERENCES transactions(id),
    bib_number              INTEGER,
    status                  TEXT NOT NULL DEFAULT 'pending'
                                CHECK(status IN ('pending','confirmed','cancelled','refunded')),
    race_category           TEXT NOT NULL CHECK(race_category IN ('5K','10K')),
    amount_rupees           INTEGER NOT NULL CHECK(amount_rupees >= 0),
    payment_status          TEXT NOT NULL DEFAULT 'pending'
                                CHECK(payment_status IN ('pending','completed','failed','refunded')),
    confirmation_email_sent INTEGER NOT NULL DEFAULT 0,
    kit_collected           INTEGER NOT NULL DEFAULT 0,
    race_completed          INTEGER NOT NULL DEFAULT 0,
    created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (race_category, bib_number)
);

CREATE INDEX IF NOT EXISTS idx_registrations_status ON registrations(status, payment_status);
CREATE INDEX IF NOT EXISTS idx_registrations_category ON registrations(race_category, status);
`
