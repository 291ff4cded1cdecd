package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tally/internal"
	"tally/internal/collectors"
	"tally/internal/config"
	"tally/internal/events"
	"tally/internal/pkg/gazetteer"
)

// testDBCache caches test databases by test name so setup helpers called
// from subtests share the same database.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with tally's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

func allModels() []any {
	return []any{
		&collectors.Collector{},
		&events.Event{},
	}
}

// SetupTestDB creates a test database with all tally models migrated.
// Uses a named in-memory database with cache=shared so multiple connections
// within a test see the same data, and caches by root test name so subtest
// closures reuse the outer test's database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()
	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CleanAllTables empties every application table so handler tests start
// from a blank store.
func CleanAllTables(db *gorm.DB) {
	db.Exec("DELETE FROM events")
	db.Exec("DELETE FROM collectors")
}

// CreateMinimalTestApp builds a test Fiber app with all routes mounted over
// the given registry and queue. The queue is left unstarted so tests can
// observe buffered events before any drain runs.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB, registry *collectors.Registry, queue *events.Queue) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	// Same values production runs with: tracked pages hit the ingestion
	// API cross-origin.
	cfg.SecFetchSiteAllowedValues = []string{"cross-site", "same-site", "same-origin", "none"}

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv, registry, queue, gazetteer.New("", GetLogger()))
	return srv.App()
}

// CreateTestCollector inserts a collector with the given origin and
// timestamp and returns it.
func CreateTestCollector(t *testing.T, db *gorm.DB, origin string, timestamp time.Time) collectors.Collector {
	t.Helper()

	collector := collectors.Collector{
		ID:        uuid.NewString(),
		Origin:    origin,
		Country:   "Germany",
		City:      "Berlin",
		OS:        "MacOS",
		Browser:   "Firefox",
		Timestamp: timestamp.UTC(),
	}
	if err := db.Create(&collector).Error; err != nil {
		t.Fatalf("testsupport: failed to create test collector: %v", err)
	}
	return collector
}

// CreateTestEvent inserts an event for the given collector at the given
// timestamp and returns it.
func CreateTestEvent(t *testing.T, db *gorm.DB, collectorID, name, url string, timestamp time.Time) events.Event {
	t.Helper()

	event := events.Event{
		ID:          uuid.NewString(),
		URL:         url,
		Name:        name,
		Timestamp:   timestamp.UTC(),
		CollectorID: collectorID,
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("testsupport: failed to create test event: %v", err)
	}
	return event
}
