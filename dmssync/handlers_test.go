package dmssync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/vhclabs/vhc_backend/config"
	"github.com/vhclabs/vhc_backend/models"
	"github.com/vhclabs/vhc_backend/utils"
	"gorm.io/gorm"
)

func setupHandlerTest(t *testing.T) (*gorm.DB, *models.Organization, *models.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	prev := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() { config.SetDB(prev) })

	org := seedOrganization(t, db)
	user := models.User{
		OrganizationId: org.ID.String(),
		Username:       "staff1",
		Name:           "Staff One",
		Password:       "x",
		Role:           models.UserRoleStaff,
		IsActive:       utils.NewTrue(),
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return db, org, &user
}

func doRequest(t *testing.T, handler gin.HandlerFunc, method, target, username string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		req = req.WithContext(utils.SetUsernameInContext(req.Context(), username))
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	handler(c)
	return w
}

func TestStatusHandlerReturnsConnectionAndSettings(t *testing.T) {
	_, _, user := setupHandlerTest(t)

	w := doRequest(t, StatusHandler(), http.MethodGet, "/api/integrations/dms/status", user.Username, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Connection.Status != models.DmsStatusConnected {
		t.Fatalf("connection status = %q", resp.Connection.Status)
	}
	if resp.Connection.DealerRef != "DLR-1" {
		t.Fatalf("dealer ref = %q", resp.Connection.DealerRef)
	}
}

func TestStatusHandlerRejectsAnonymous(t *testing.T) {
	setupHandlerTest(t)

	w := doRequest(t, StatusHandler(), http.MethodGet, "/api/integrations/dms/status", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestConnectHandlerStoresEncryptedKey(t *testing.T) {
	t.Setenv("DMS_CREDENTIALS_KEY", "test-master-key")
	db, org, user := setupHandlerTest(t)

	// start from a disconnected org
	if err := db.Where("organization_id = ?", org.ID.String()).Delete(&models.DmsConnection{}).Error; err != nil {
		t.Fatalf("remove seeded connection: %v", err)
	}

	w := doRequest(t, ConnectHandler(), http.MethodPost, "/api/integrations/dms/connect", user.Username, ConnectRequest{
		APIKey:     "live-api-key",
		DealerRef:  "DLR-9",
		DealerName: "Main Dealer",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var conn models.DmsConnection
	if err := db.Where("organization_id = ?", org.ID.String()).Take(&conn).Error; err != nil {
		t.Fatalf("load connection: %v", err)
	}
	if conn.Status != models.DmsStatusConnected {
		t.Fatalf("connection status = %q", conn.Status)
	}
	if conn.AuthSecretRef == "live-api-key" {
		t.Fatal("api key stored in plaintext")
	}
	plain, err := utils.DecryptSecret(conn.AuthSecretRef)
	if err != nil || plain != "live-api-key" {
		t.Fatalf("decrypt stored key: %q %v", plain, err)
	}
}

func TestConnectHandlerValidatesInput(t *testing.T) {
	_, _, user := setupHandlerTest(t)

	w := doRequest(t, ConnectHandler(), http.MethodPost, "/api/integrations/dms/connect", user.Username, ConnectRequest{
		APIKey: "key-without-dealer",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDisconnectHandlerClearsCredentials(t *testing.T) {
	db, org, user := setupHandlerTest(t)

	w := doRequest(t, DisconnectHandler(), http.MethodPost, "/api/integrations/dms/disconnect", user.Username, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var conn models.DmsConnection
	if err := db.Where("organization_id = ?", org.ID.String()).Take(&conn).Error; err != nil {
		t.Fatalf("load connection: %v", err)
	}
	if conn.Status != models.DmsStatusDisconnected || conn.AuthSecretRef != "" {
		t.Fatalf("connection not cleared: status=%q secret=%q", conn.Status, conn.AuthSecretRef)
	}
}

func TestUpdateSettingsHandlerRejectsUnknownTemplate(t *testing.T) {
	_, _, user := setupHandlerTest(t)

	w := doRequest(t, UpdateSettingsHandler(), http.MethodPost, "/api/integrations/dms/settings", user.Username, UpdateSettingsRequest{
		DefaultTemplateId: 9999,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateSettingsHandlerSavesFilter(t *testing.T) {
	db, org, user := setupHandlerTest(t)

	var template models.InspectionTemplate
	if err := db.Where("organization_id = ?", org.ID.String()).First(&template).Error; err != nil {
		t.Fatalf("load template: %v", err)
	}

	w := doRequest(t, UpdateSettingsHandler(), http.MethodPost, "/api/integrations/dms/settings", user.Username, UpdateSettingsRequest{
		DefaultTemplateId: template.ID,
		ServiceTypes:      []string{"service", "mot"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	reloaded, err := models.GetOrganizationById(context.Background(), org.ID.String())
	if err != nil {
		t.Fatalf("reload organization: %v", err)
	}
	if reloaded.DefaultTemplateId != template.ID {
		t.Fatalf("default template = %d", reloaded.DefaultTemplateId)
	}
	filter := reloaded.ServiceTypeFilter()
	if len(filter) != 2 || filter[0] != "service" || filter[1] != "mot" {
		t.Fatalf("service type filter = %v", filter)
	}
}

func TestImportHistoryHandlerScopesToOrganization(t *testing.T) {
	db, org, user := setupHandlerTest(t)

	mine := models.ImportRun{
		OrganizationId: org.ID.String(),
		ImportType:     models.ImportTypeManual,
		ImportDate:     "2026-08-28",
		Status:         models.ImportRunStatusCompleted,
	}
	other := models.ImportRun{
		OrganizationId: "some-other-org",
		ImportType:     models.ImportTypeManual,
		ImportDate:     "2026-08-28",
		Status:         models.ImportRunStatusCompleted,
	}
	if err := db.Create(&mine).Error; err != nil {
		t.Fatalf("seed run: %v", err)
	}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("seed run: %v", err)
	}

	w := doRequest(t, ImportHistoryHandler(), http.MethodGet, "/api/integrations/dms/import-runs", user.Username, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp ImportHistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != mine.ID {
		t.Fatalf("items = %+v", resp.Items)
	}
}

func TestImportRunDetailHandlerNotFoundForForeignRun(t *testing.T) {
	db, _, user := setupHandlerTest(t)

	foreign := models.ImportRun{
		OrganizationId: "some-other-org",
		ImportType:     models.ImportTypeManual,
		ImportDate:     "2026-08-28",
		Status:         models.ImportRunStatusCompleted,
	}
	if err := db.Create(&foreign).Error; err != nil {
		t.Fatalf("seed run: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/integrations/dms/import-runs/1", nil)
	req = req.WithContext(utils.SetUsernameInContext(req.Context(), user.Username))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	ImportRunDetailHandler()(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestResolveOrganizationIDAdminOverride(t *testing.T) {
	db, org, _ := setupHandlerTest(t)

	admin := models.User{
		OrganizationId: "admin-home-org",
		Username:       "root1",
		Name:           "Root",
		Password:       "x",
		Role:           models.UserRoleAdmin,
		IsActive:       utils.NewTrue(),
	}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	w := doRequest(t, StatusHandler(), http.MethodGet,
		"/api/integrations/dms/status?organization_id="+org.ID.String(), admin.Username, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin override status = %d, body = %s", w.Code, w.Body.String())
	}

	// staff cannot read another organization
	w = doRequest(t, StatusHandler(), http.MethodGet,
		"/api/integrations/dms/status?organization_id=some-other-org", "staff1", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("staff override status = %d, want 401", w.Code)
	}
}
