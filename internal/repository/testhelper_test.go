package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/database/migrations"
	_ "github.com/tursodatabase/go-libsql"
)

// testNow returns the current time formatted the way the repositories
// store timestamps.
func testNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Every pooled connection to ":memory:" opens its own empty
	// database, so keep the pool at a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// InsertTestOrder is a helper to insert an order row directly.
func InsertTestOrder(t *testing.T, db *sql.DB, id, productID, email, status string) {
	t.Helper()
	query := `
		INSERT INTO orders (id, product_id, email, amount, currency, status, provider, created_at, updated_at)
		VALUES (?, ?, ?, '34.3', 'CNY', ?, 'alipay', ?, ?)
	`
	now := testNow()
	if _, err := db.Exec(query, id, productID, email, status, now, now); err != nil {
		t.Fatalf("failed to insert test order: %v", err)
	}
}

// InsertTestLicenseKey is a helper to insert an available license key.
func InsertTestLicenseKey(t *testing.T, db *sql.DB, id, key, productID, createdAt string) {
	t.Helper()
	query := `
		INSERT INTO license_keys (id, key, family, product_id, status, created_at)
		VALUES (?, ?, 'validator', ?, 'available', ?)
	`
	if _, err := db.Exec(query, id, key, productID, createdAt); err != nil {
		t.Fatalf("failed to insert test license key: %v", err)
	}
}

// InsertTestAgent is a helper to insert an agent directly.
func InsertTestAgent(t *testing.T, db *sql.DB, code, rate string) {
	t.Helper()
	query := `
		INSERT INTO agents (code, name, default_rate, total_commission, balance, created_at, updated_at)
		VALUES (?, 'Test Agent', ?, '0', '0', ?, ?)
	`
	now := testNow()
	if _, err := db.Exec(query, code, rate, now, now); err != nil {
		t.Fatalf("failed to insert test agent: %v", err)
	}
}

// InsertTestPromotion is a helper to insert a promotion directly.
func InsertTestPromotion(t *testing.T, db *sql.DB, code, agentCode, rate string) {
	t.Helper()
	query := `
		INSERT INTO promotions (code, agent_code, product_type, rate, conversions, total_commission, created_at, updated_at)
		VALUES (?, ?, 'gmaps', ?, 0, '0', ?, ?)
	`
	now := testNow()
	if _, err := db.Exec(query, code, agentCode, rate, now, now); err != nil {
		t.Fatalf("failed to insert test promotion: %v", err)
	}
}

// InsertTestUser is a helper to insert a website user directly.
func InsertTestUser(t *testing.T, db *sql.DB, id, email, passwordHash string) {
	t.Helper()
	query := `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := testNow()
	if _, err := db.Exec(query, id, email, passwordHash, now, now); err != nil {
		t.Fatalf("failed to insert test user: %v", err)
	}
}
