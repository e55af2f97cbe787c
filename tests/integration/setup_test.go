package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/store"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	if testing.Short() {
		t.Skip("integration test needs docker")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func runMigrations(db *sql.DB) error {
	migrationDir := "../../migrations"
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".up.sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		filePath := filepath.Join(migrationDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}

	return nil
}

type market struct {
	buyer    *models.User
	supplier *models.User
	admin    *models.User
	product  *models.Product
	offer    *models.Offer
}

// seedMarket creates a buyer, a supplier with one active offer and an admin.
func seedMarket(t *testing.T, st *store.Store, stock int) market {
	t.Helper()
	ctx := context.Background()

	var m market
	var err error

	m.buyer, err = st.CreateUser(ctx, "buyer@example.com", "Buyer", models.RoleIndividual)
	if err != nil {
		t.Fatalf("Create buyer: %v", err)
	}

	m.supplier, err = st.CreateUser(ctx, "supplier@example.com", "Supplier", models.RoleSupplier)
	if err != nil {
		t.Fatalf("Create supplier: %v", err)
	}

	m.admin, err = st.CreateUser(ctx, "admin@example.com", "Admin", models.RoleAdmin)
	if err != nil {
		t.Fatalf("Create admin: %v", err)
	}

	m.product, err = st.CreateProduct(ctx, "RAIN-001", "Rain jacket", "Waterproof shell")
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	m.offer = &models.Offer{
		ProductID:     m.product.ID,
		SupplierID:    m.supplier.ID,
		Price:         decimal.RequireFromString("50.00"),
		Currency:      "KWD",
		StockQuantity: stock,
		MinOrderQty:   1,
		IsActive:      true,
	}
	if err := st.CreateOffer(ctx, m.offer); err != nil {
		t.Fatalf("Create offer: %v", err)
	}

	return m
}
