package drinks

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/berlinerpub/pubsite/pkg/pubsite/auth"
	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
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

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db)

	handler.RegisterPublicRoutes(r.Group("/api"))

	admin := r.Group("/api/admin")
	admin.Use(auth.AuthMiddleware(), auth.RequireRole(models.RoleAdmin, models.RoleEditor))
	handler.RegisterRoutes(admin)

	return r
}

func editorHeader() string {
	token, _ := auth.GenerateToken(uuid.New(), "editor@example.com", string(models.RoleEditor))
	return "Bearer " + token
}

func createTestDrink(t *testing.T, db *gorm.DB, name, category string, sortOrder int, available bool) models.Drink {
	drink := models.Drink{
		NameDE:      name,
		NameEN:      name,
		Category:    category,
		Price:       4.5,
		Volume:      "0.5l",
		IsAvailable: available,
		SortOrder:   sortOrder,
	}
	if err := db.Create(&drink).Error; err != nil {
		t.Fatalf("Failed to create test drink: %v", err)
	}
	return drink
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", editorHeader())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestCreateDrink(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	body := `{"name_de":"Helles","name_en":"Lager","category":"beer","price":4.2,"volume":"0.5l"}`
	resp := doRequest(router, "POST", "/api/admin/drinks", body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var drink models.Drink
	json.Unmarshal(resp.Body.Bytes(), &drink)
	if !drink.IsAvailable {
		t.Error("Expected new drink to be available by default")
	}
	if drink.Price != 4.2 {
		t.Errorf("Expected price 4.2, got %v", drink.Price)
	}
}

func TestCreateDrinkValidation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	cases := map[string]string{
		"missing name":     `{"name_en":"Lager","category":"beer","price":4}`,
		"unknown category": `{"name_de":"x","name_en":"x","category":"food","price":4}`,
		"negative price":   `{"name_de":"x","name_en":"x","category":"beer","price":-1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := doRequest(router, "POST", "/api/admin/drinks", body)
			if resp.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", resp.Code)
			}
		})
	}
}

func TestUpdateDrink(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	drink := createTestDrink(t, db, "Pils", "beer", 1, true)

	resp := doRequest(router, "PUT", "/api/admin/drinks/"+drink.ID.String(), `{"is_available":false,"price":0}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var updated models.Drink
	db.First(&updated, "id = ?", drink.ID)
	if updated.IsAvailable {
		t.Error("Expected drink to be unavailable")
	}
	if updated.Price != 0 {
		t.Errorf("Expected price 0, got %v", updated.Price)
	}
	if updated.NameDE != "Pils" {
		t.Errorf("Expected name untouched, got %s", updated.NameDE)
	}
}

func TestDeleteDrink(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	drink := createTestDrink(t, db, "Pils", "beer", 1, true)

	resp := doRequest(router, "DELETE", "/api/admin/drinks/"+drink.ID.String(), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	resp = doRequest(router, "GET", "/api/admin/drinks/"+drink.ID.String(), "")
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestPublicMenu(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	createTestDrink(t, db, "Espresso", "hotdrinks", 1, true)
	createTestDrink(t, db, "Weizen", "beer", 2, true)
	createTestDrink(t, db, "Pils", "beer", 1, true)
	createTestDrink(t, db, "Riesling", "wine", 1, false)

	req, _ := http.NewRequest("GET", "/api/menu", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	var menu []models.Drink
	json.Unmarshal(resp.Body.Bytes(), &menu)

	names := make([]string, len(menu))
	for i, d := range menu {
		names[i] = d.NameEN
	}
	want := []string{"Pils", "Weizen", "Espresso"}
	if len(names) != len(want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, names)
			break
		}
	}

	req, _ = http.NewRequest("GET", "/api/menu?category=hotdrinks", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	json.Unmarshal(resp.Body.Bytes(), &menu)
	if len(menu) != 1 {
		t.Errorf("Expected 1 hot drink, got %d", len(menu))
	}
}
