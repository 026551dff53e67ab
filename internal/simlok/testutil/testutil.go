// Package testutil wires handlers against an isolated postgres schema and signs
// tokens for the auth middleware.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/config"
	"github.com/asmorodws/simlok2-sub003/internal/middleware"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_simlok"
	JWTSecret  = "simlok-test-jwt-secret"
)

// TestEnv bundles what a handler test needs.
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

var silent = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

// loadDotEnv picks up the .env next to go.mod, if any.
func loadDotEnv() {
	_, file, _, _ := runtime.Caller(0)
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			_ = godotenv.Load(filepath.Join(dir, ".env"))
			return
		}
		if filepath.Dir(dir) == dir {
			return
		}
	}
}

func baseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable connect_timeout=3",
		config.GetEnvOrDefault("DB_HOST", "127.0.0.1"),
		config.GetEnvOrDefault("DB_PORT", "5432"),
		config.GetEnvOrDefault("DB_USER", "simlok"),
		config.GetEnvOrDefault("DB_PASSWORD", "simlok"),
		config.GetEnvOrDefault("DB_NAME", "simlok"),
	)
}

// execAdmin runs one statement on a short-lived connection outside the test schema.
func execAdmin(dsn, stmt string) error {
	db, err := gorm.Open(postgres.Open(dsn), silent)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return db.Exec(stmt).Error
}

// SetupTestDB opens a connection bound to a fresh schema, migrates the submission
// tables and drops the schema on cleanup. Without a reachable postgres the test is
// skipped.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadDotEnv()

	dsn := baseDSN()
	schema := fmt.Sprintf("%s_%s", TestSchema, uuid.NewString()[:8])
	if err := execAdmin(dsn, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		t.Skipf("postgres not reachable, skipping: %v", err)
	}

	// search_path on the DSN applies to every pooled connection
	db, err := gorm.Open(postgres.Open(dsn+" search_path="+schema), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open test schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		if err := execAdmin(dsn, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
	})

	if err := db.AutoMigrate(&entity.Submission{}, &entity.SupportDocument{}, &entity.Worker{}, &entity.ScanRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SetupRouter returns a bare gin engine in test mode.
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup mounts path behind JWTAuth with the test secret.
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken signs claims the way the server expects them.
func GenerateTestToken(userID, name string, roles []string) string {
	now := time.Now()
	claims := middleware.JWTClaims{
		UserID: userID,
		Name:   name,
		Roles:  append([]string{}, roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    "simlok",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	if err != nil {
		panic(err)
	}
	return signed
}

// DefaultTestToken is an admin, which passes every role check.
func DefaultTestToken() string {
	return GenerateTestToken("test-admin", "Test Admin", []string{middleware.AdminRole})
}

// RoleToken holds exactly one role.
func RoleToken(role string) string {
	return GenerateTestToken("test-"+role, "Test "+role, []string{role})
}

// DoRequest sends a JSON request through the router.
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	return DoRequestWithHeaders(r, method, path, body, token, nil)
}

// DoRequestWithHeaders is DoRequest plus extra headers such as If-Match.
func DoRequestWithHeaders(r *gin.Engine, method, path string, body interface{}, token string, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes the {code, message, data} envelope into a map. A body that is
// not JSON yields nil.
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		return nil
	}
	return out
}

// SeedSubmission inserts a submission in the given state with one complete worker.
func SeedSubmission(t *testing.T, db *gorm.DB, id string, review entity.ReviewStatus, approval entity.ApprovalStatus) *entity.Submission {
	t.Helper()
	sub := &entity.Submission{
		ID:                      id,
		VendorName:              "PT Seed Vendor",
		JobDescription:          "Pengecatan tangki",
		WorkLocation:            "Area 51",
		ReviewStatus:            review,
		ApprovalStatus:          approval,
		ImplementationStartDate: entity.NewDate(2024, time.June, 3),
		ImplementationEndDate:   entity.NewDate(2024, time.June, 5),
		WorkingHours:            "08:00-16:00",
		WorkerCount:             1,
		Version:                 1,
		Workers: []entity.Worker{{
			ID:                id + "-w1",
			Name:              "Budi",
			Photo:             "/uploads/budi.jpg",
			HSSEPassNumber:    "HSSE-001",
			HSSEPassValidThru: entity.NewDate(2025, time.January, 1),
			HSSEPassDocument:  "/uploads/budi-hsse.pdf",
		}},
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("seed submission %s: %v", id, err)
	}
	return sub
}
