package Controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/restaurant-tables/database"
	"github.com/yeremiapane/restaurant-tables/router"
	"github.com/yeremiapane/restaurant-tables/services"
	"github.com/yeremiapane/restaurant-tables/utils"
)

type testServer struct {
	db       *gorm.DB
	registry *services.TableRegistry
	router   *gin.Engine
}

// setupTestServer memakai SQLite in-memory, satu database per test
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	utils.InitLogger("error", "text")

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	events := services.NopPublisher{}
	ledger := services.NewUsageLedger(db)
	qr := services.NewQRService(db, "https://menu.example.test/order", events)
	registry := services.NewTableRegistry(db, ledger, qr, events, services.RegistryConfig{})
	t.Cleanup(registry.Wait)

	return &testServer{
		db:       db,
		registry: registry,
		router:   router.SetupRouter(db, registry, ledger, router.Options{}),
	}
}

func (s *testServer) do(t *testing.T, method, url string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return w, response
}

// createTable returns the id of the new table.
func (s *testServer) createTable(t *testing.T, body map[string]interface{}) uint {
	t.Helper()
	w, response := s.do(t, http.MethodPost, "/api/v1/tables", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	table := response["data"].(map[string]interface{})["table"].(map[string]interface{})
	return uint(table["id"].(float64))
}

func tableURL(id uint, suffix string) string {
	return fmt.Sprintf("/api/v1/tables/%d%s", id, suffix)
}
