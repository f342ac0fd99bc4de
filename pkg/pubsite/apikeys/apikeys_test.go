package apikeys

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/auth"
	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/berlinerpub/pubsite/pkg/pubsite/newsapi"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.Role) models.User {
	hash, _ := auth.HashPassword("password123")
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test User",
		Role:         role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db)

	api := r.Group("/api/admin")
	api.Use(auth.AuthMiddleware(), auth.RequireAdmin())
	handler.RegisterRoutes(api)

	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.Role))
	return "Bearer " + token
}

func doRequest(router *gin.Engine, method, path string, body any, user models.User) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		buf = bytes.NewBuffer(raw)
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func createTestKey(t *testing.T, db *gorm.DB, name string) models.APIKey {
	secret, _ := GenerateAPIKey()
	key := models.APIKey{
		KeyName:     name,
		Key:         secret,
		IsActive:    true,
		Permissions: []string{models.PermissionNewsCreate},
		RateLimit:   10,
	}
	if err := db.Create(&key).Error; err != nil {
		t.Fatalf("Failed to create test key: %v", err)
	}
	return key
}

func TestCreateAPIKey(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.RoleAdmin)

	resp := doRequest(router, "POST", "/api/admin/api-keys", CreateAPIKeyRequest{KeyName: "Newsletter bot"}, admin)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response CreateAPIKeyResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if !strings.HasPrefix(response.Key, KeyPrefix) {
		t.Errorf("Expected key to start with %s, got %s", KeyPrefix, response.Key)
	}
	if len(response.Key) != len(KeyPrefix)+KeyLength*2 { // hex encoding doubles the length
		t.Errorf("Expected key length %d, got %d", len(KeyPrefix)+KeyLength*2, len(response.Key))
	}
	if response.KeyPrefix != response.Key[:8] {
		t.Error("Key prefix should match the start of the key")
	}
	if response.RateLimit != models.DefaultRateLimit {
		t.Errorf("Expected default rate limit, got %d", response.RateLimit)
	}
	if len(response.Permissions) != 1 || response.Permissions[0] != models.PermissionNewsCreate {
		t.Errorf("Expected default permission, got %v", response.Permissions)
	}
	if !response.IsActive {
		t.Error("Expected new key to be active")
	}

	var stored models.APIKey
	db.First(&stored, "id = ?", response.ID)
	if stored.Key != response.Key {
		t.Error("Stored key should match the returned secret")
	}
}

func TestCreateAPIKeyValidation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.RoleAdmin)

	past := time.Now().Add(-time.Hour)
	zero := 0
	cases := map[string]any{
		"missing name":       `{}`,
		"unknown permission": CreateAPIKeyRequest{KeyName: "x", Permissions: []string{"drinks:delete"}},
		"zero rate limit":    CreateAPIKeyRequest{KeyName: "x", RateLimit: &zero},
		"expiry in the past": CreateAPIKeyRequest{KeyName: "x", ExpiresAt: &past},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := doRequest(router, "POST", "/api/admin/api-keys", body, admin)
			if resp.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
			}
		})
	}
}

func TestAPIKeysRequireAdmin(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	editor := createTestUser(t, db, "editor@example.com", models.RoleEditor)

	resp := doRequest(router, "GET", "/api/admin/api-keys", nil, editor)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}
}

func TestListAPIKeysMasksSecret(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.RoleAdmin)
	key := createTestKey(t, db, "Key 1")
	createTestKey(t, db, "Key 2")

	resp := doRequest(router, "GET", "/api/admin/api-keys", nil, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	if strings.Contains(resp.Body.String(), key.Key) {
		t.Error("List must not expose the full secret")
	}

	var response []APIKeyResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	if len(response) != 2 {
		t.Errorf("Expected 2 API keys, got %d", len(response))
	}
}

func TestGetAPIKeyWindowUsage(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.RoleAdmin)
	key := createTestKey(t, db, "bot")

	now := time.Now().UTC()
	db.Create(&[]models.APILog{
		{Endpoint: newsapi.Endpoint, Method: "POST", ResponseStatus: 201, APIKeyID: &key.ID, CreatedAt: now.Add(-time.Minute)},
		{Endpoint: newsapi.Endpoint, Method: "POST", ResponseStatus: 201, APIKeyID: &key.ID, CreatedAt: now.Add(-2 * time.Hour)},
		{Endpoint: newsapi.Endpoint, Method: "POST", ResponseStatus: 400, APIKeyID: &key.ID, CreatedAt: now.Add(-time.Minute)},
	})

	resp := doRequest(router, "GET", "/api/admin/api-keys/"+key.ID.String(), nil, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var response KeyDetailResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response.WindowRequests != 1 {
		t.Errorf("Expected 1 request in window, got %d", response.WindowRequests)
	}
}

func TestUpdateAPIKey(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.RoleAdmin)
	key := createTestKey(t, db, "bot")

	body := `{"is_active":false,"rate_limit":250,"key_name":"renamed","expires_at":"2030-01-01T00:00:00Z"}`
	resp := doRequest(router, "PATCH", "/api/admin/api-keys/"+key.ID.String(), body, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var updated models.APIKey
	db.First(&updated, "id = ?", key.ID)
	if updated.IsActive {
		t.Error("Expected key to be deactivated")
	}
	if updated.RateLimit != 250 || updated.KeyName != "renamed" {
		t.Errorf("Unexpected update result: %+v", updated)
	}
	if updated.ExpiresAt == nil {
		t.Fatal("Expected expiry to be set")
	}
	if updated.Key != key.Key {
		t.Error("Secret must not change on update")
	}

	resp = doRequest(router, "PATCH", "/api/admin/api-keys/"+key.ID.String(), `{"clear_expiry":true}`, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	db.First(&updated, "id = ?", key.ID)
	if updated.ExpiresAt != nil {
		t.Error("Expected expiry to be cleared")
	}

	resp = doRequest(router, "PATCH", "/api/admin/api-keys/"+key.ID.String(), `{"permissions":["everything"]}`, admin)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown permission, got %d", resp.Code)
	}
}

func TestDeleteAPIKeyKeepsLogs(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.RoleAdmin)
	key := createTestKey(t, db, "bot")
	db.Create(&models.APILog{Endpoint: newsapi.Endpoint, Method: "POST", ResponseStatus: 201, APIKeyID: &key.ID})

	resp := doRequest(router, "DELETE", "/api/admin/api-keys/"+key.ID.String(), nil, admin)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var count int64
	db.Model(&models.APIKey{}).Where("id = ?", key.ID).Count(&count)
	if count != 0 {
		t.Error("API key should be deleted")
	}
	db.Model(&models.APILog{}).Count(&count)
	if count != 1 {
		t.Error("Audit rows should survive key deletion")
	}

	resp = doRequest(router, "DELETE", "/api/admin/api-keys/"+key.ID.String(), nil, admin)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestAPILogs(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.RoleAdmin)
	key := createTestKey(t, db, "bot")
	other := createTestKey(t, db, "other")

	db.Create(&[]models.APILog{
		{Endpoint: newsapi.Endpoint, Method: "POST", ResponseStatus: 201, APIKeyID: &key.ID},
		{Endpoint: newsapi.Endpoint, Method: "POST", ResponseStatus: 429, APIKeyID: &key.ID},
		{Endpoint: newsapi.Endpoint, Method: "POST", ResponseStatus: 201, APIKeyID: &other.ID},
		{Endpoint: newsapi.Endpoint, Method: "POST", ResponseStatus: 401},
	})

	var response struct {
		Data  []models.APILog `json:"data"`
		Total int64           `json:"total"`
	}

	resp := doRequest(router, "GET", "/api/admin/api-keys/"+key.ID.String()+"/logs", nil, admin)
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response.Total != 2 {
		t.Errorf("Expected 2 logs for key, got %d", response.Total)
	}

	resp = doRequest(router, "GET", "/api/admin/api-logs", nil, admin)
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response.Total != 4 {
		t.Errorf("Expected 4 logs, got %d", response.Total)
	}

	resp = doRequest(router, "GET", "/api/admin/api-logs?status=201&limit=1", nil, admin)
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response.Total != 2 || len(response.Data) != 1 {
		t.Errorf("Expected 2 matching logs and a page of 1, got %d/%d", response.Total, len(response.Data))
	}

	resp = doRequest(router, "GET", "/api/admin/api-logs?status=abc", nil, admin)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}
