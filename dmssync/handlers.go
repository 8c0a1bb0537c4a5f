package dmssync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/vhclabs/vhc_backend/config"
	"github.com/vhclabs/vhc_backend/models"
	"github.com/vhclabs/vhc_backend/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

func newEngineFromGlobals() *Engine {
	return NewEngine(config.GetDB(), config.GetLogger(), NewHTTPAdapter(), config.GetRedisLock())
}

// LoginHandler issues a JWT and caches the session in redis so the session
// middleware can resolve tokens without a db round trip.
func LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var vErrs validator.ValidationErrors
			if errors.As(err, &vErrs) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required", "fields": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db is nil"})
			return
		}

		var user models.User
		err := db.WithContext(c.Request.Context()).
			Where("username = ? AND is_active = ?", strings.TrimSpace(req.Username), true).
			Take(&user).Error
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if err := utils.ComparePassword(user.Password, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := utils.JwtGenerate(user.ID, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		sessionTTL := 24 * time.Hour
		if err := config.SetRedisValue("Token:"+token, user.Username, sessionTTL); err != nil {
			config.GetLogger().WithError(err).Warn("failed to cache session token")
		}
		if err := config.SetRedisObject("User:"+user.Username, &user, sessionTTL); err != nil {
			config.GetLogger().WithError(err).Warn("failed to cache session user")
		}

		c.JSON(http.StatusOK, gin.H{
			"token":           token,
			"username":        user.Username,
			"name":            user.Name,
			"role":            user.Role,
			"organization_id": user.OrganizationId,
		})
	}
}

// StatusHandler returns the DMS connection, import settings and last-import
// cache for the caller's organization.
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId, err := resolveOrganizationID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetOrganizationIdInContext(c.Request.Context(), organizationId)
		db := config.GetDB().WithContext(ctx)

		org, err := models.GetOrganizationById(ctx, organizationId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		conn, err := getConnection(db, organizationId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		settings := SettingsResponse{
			DefaultTemplateId: org.DefaultTemplateId,
			ServiceTypes:      org.ServiceTypeFilter(),
		}
		if conn == nil {
			c.JSON(http.StatusOK, StatusResponse{
				Connection: ConnectionResponse{Status: models.DmsStatusDisconnected},
				Settings:   settings,
			})
			return
		}

		var lastImportAt *string
		if org.LastImportAt != nil {
			lastImportAt = formatTime(org.LastImportAt)
		}
		c.JSON(http.StatusOK, StatusResponse{
			Connection: ConnectionResponse{
				Status:     conn.Status,
				DealerRef:  conn.DealerRef,
				DealerName: conn.DealerName,
			},
			LastImportAt:     lastImportAt,
			LastImportStatus: org.LastImportStatus,
			LastImportError:  org.LastImportError,
			Settings:         settings,
		})
	}
}

// ConnectHandler stores the DMS credentials, encrypted at rest, and marks the
// connection connected. Reconnecting overwrites the previous credentials.
func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId, err := resolveOrganizationID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(req.APIKey) == "" || strings.TrimSpace(req.DealerRef) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "apiKey and dealerRef are required"})
			return
		}

		encrypted, err := utils.EncryptSecret(strings.TrimSpace(req.APIKey))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetOrganizationIdInContext(c.Request.Context(), organizationId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, organizationId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if conn == nil {
			conn = &models.DmsConnection{
				OrganizationId: organizationId,
				Provider:       models.DmsProviderDefault,
				Status:         models.DmsStatusConnected,
				AuthType:       "api_key",
				AuthSecretRef:  encrypted,
				DealerRef:      strings.TrimSpace(req.DealerRef),
				DealerName:     strings.TrimSpace(req.DealerName),
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			updates := map[string]interface{}{
				"status":          models.DmsStatusConnected,
				"auth_type":       "api_key",
				"auth_secret_ref": encrypted,
				"dealer_ref":      strings.TrimSpace(req.DealerRef),
				"dealer_name":     strings.TrimSpace(req.DealerName),
			}
			if err := db.Model(conn).Updates(updates).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// DisconnectHandler marks the connection disconnected and clears the stored
// credentials. Imported data is left untouched.
func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId, err := resolveOrganizationID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetOrganizationIdInContext(c.Request.Context(), organizationId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, organizationId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		updates := map[string]interface{}{
			"status":          models.DmsStatusDisconnected,
			"auth_secret_ref": "",
		}
		if err := db.Model(conn).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// UpdateSettingsHandler sets the default template and service-type filter
// used by subsequent imports.
func UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId, err := resolveOrganizationID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetOrganizationIdInContext(c.Request.Context(), organizationId)
		db := config.GetDB().WithContext(ctx)

		if req.DefaultTemplateId > 0 {
			var template models.InspectionTemplate
			err := db.Where("id = ? AND organization_id = ? AND is_active = ?", req.DefaultTemplateId, organizationId, true).
				Take(&template).Error
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "template not found or inactive"})
				return
			}
		}

		updates := map[string]interface{}{
			"default_template_id":      req.DefaultTemplateId,
			"service_type_filter_json": models.EncodeServiceTypeFilter(req.ServiceTypes),
		}
		err = db.Model(&models.Organization{}).Where("id = ?", organizationId).Updates(updates).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// TriggerImportHandler runs an import synchronously and returns the full
// result. Dashboard "import now" goes through here.
func TriggerImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId, err := resolveOrganizationID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req TriggerImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		username, _ := utils.GetUsernameFromContext(c.Request.Context())
		ctx := utils.SetOrganizationIdInContext(c.Request.Context(), organizationId)

		engine := newEngineFromGlobals()
		result, err := engine.RunImport(ctx, ImportParams{
			OrganizationId: organizationId,
			SiteId:         req.SiteId,
			Date:           req.Date,
			ImportType:     req.ImportType,
			TriggeredBy:    username,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ScheduleImportHandler queues an import through pub/sub instead of running
// it on the request goroutine.
func ScheduleImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId, err := resolveOrganizationID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req TriggerImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		username, _ := utils.GetUsernameFromContext(c.Request.Context())
		importType := req.ImportType
		if importType == "" {
			importType = models.ImportTypeScheduled
		}

		messageId, err := PublishImportRun(c.Request.Context(), ImportPubSubPayload{
			OrganizationId: organizationId,
			SiteId:         req.SiteId,
			Date:           req.Date,
			ImportType:     importType,
			TriggeredBy:    username,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"messageId": messageId})
	}
}

// ImportHistoryHandler lists recent runs, newest first. limit caps at 100.
func ImportHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId, err := resolveOrganizationID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetOrganizationIdInContext(c.Request.Context(), organizationId)
		db := config.GetDB().WithContext(ctx)

		limit := 20
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		var runs []models.ImportRun
		err = db.Where("organization_id = ?", organizationId).
			Order("id desc").Limit(limit).Find(&runs).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]ImportRunResponse, 0, len(runs))
		for i := range runs {
			items = append(items, mapRunToResponse(&runs[i]))
		}
		c.JSON(http.StatusOK, ImportHistoryResponse{Items: items})
	}
}

// ImportRunDetailHandler returns one run with its per-booking errors.
func ImportRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId, err := resolveOrganizationID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		runId, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetOrganizationIdInContext(c.Request.Context(), organizationId)
		db := config.GetDB().WithContext(ctx)

		var run models.ImportRun
		err = db.Where("id = ? AND organization_id = ?", runId, organizationId).Take(&run).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, ImportRunDetailResponse{
			ImportRunResponse: mapRunToResponse(&run),
			CustomersCreated:  run.CustomersCreated,
			VehiclesCreated:   run.VehiclesCreated,
			Errors:            models.DecodeImportRunErrors(run.ErrorsJSON),
		})
	}
}

// RetryImportRunHandler re-runs the import for a finished run's date. Already
// imported bookings are skipped by the idempotency check, so only the failed
// remainder is attempted again.
func RetryImportRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId, err := resolveOrganizationID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		runId, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetOrganizationIdInContext(c.Request.Context(), organizationId)
		db := config.GetDB().WithContext(ctx)

		var run models.ImportRun
		err = db.Where("id = ? AND organization_id = ?", runId, organizationId).Take(&run).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run.Status == models.ImportRunStatusRunning {
			c.JSON(http.StatusConflict, gin.H{"error": "run is still in progress"})
			return
		}

		username, _ := utils.GetUsernameFromContext(c.Request.Context())
		engine := newEngineFromGlobals()
		result, err := engine.RunImport(ctx, ImportParams{
			OrganizationId: organizationId,
			SiteId:         run.SiteId,
			Date:           run.ImportDate,
			ImportType:     models.ImportTypeManual,
			TriggeredBy:    username,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ExportImportHistoryHandler streams the run history as an xlsx workbook.
func ExportImportHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId, err := resolveOrganizationID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetOrganizationIdInContext(c.Request.Context(), organizationId)
		db := config.GetDB().WithContext(ctx)

		var runs []models.ImportRun
		err = db.Where("organization_id = ?", organizationId).
			Order("id desc").Limit(500).Find(&runs).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		f := excelize.NewFile()
		defer f.Close()
		sheet := "Import History"
		f.SetSheetName("Sheet1", sheet)

		headers := []string{"Run ID", "Date", "Type", "Status", "Found", "Imported", "Skipped", "Failed", "Checks Created", "Triggered By", "Started At", "Completed At"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(sheet, cell, h)
		}
		for row, run := range runs {
			values := []interface{}{
				run.ID, run.ImportDate, run.ImportType, run.Status,
				run.BookingsFound, run.BookingsImported, run.BookingsSkipped, run.BookingsFailed,
				run.HealthChecksCreated, run.TriggeredBy,
				run.StartedAt.Format(time.RFC3339), derefFormatted(run.CompletedAt),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				f.SetCellValue(sheet, cell, v)
			}
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=import-history-%s.xlsx", time.Now().Format("2006-01-02")))
		if err := f.Write(c.Writer); err != nil {
			config.GetLogger().WithError(err).Error("failed to write export workbook")
		}
	}
}

// SweepStaleRunsHandler runs the stale-run watchdog on demand. Admin only.
func SweepStaleRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !callerIsAdmin(c.Request.Context()) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		engine := newEngineFromGlobals()
		swept, err := engine.SweepStaleRuns(c.Request.Context(), StaleRunThreshold())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"swept": swept})
	}
}

// resolveOrganizationID resolves the caller's organization from the session,
// with an explicit organization_id query override for admins.
func resolveOrganizationID(c *gin.Context) (string, error) {
	username, ok := utils.GetUsernameFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(username) == "" {
		return "", errors.New("unauthorized")
	}

	organizationId := strings.TrimSpace(c.Query("organization_id"))
	if organizationId != "" {
		if err := authorizeInternalOrganization(c.Request.Context(), organizationId); err != nil {
			return "", err
		}
		return organizationId, nil
	}

	user, err := sessionUser(c.Request.Context(), username)
	if err != nil {
		return "", err
	}
	organizationId = strings.TrimSpace(user.OrganizationId)
	if organizationId == "" {
		return "", errors.New("organization_id is required")
	}
	return organizationId, nil
}

func authorizeInternalOrganization(ctx context.Context, organizationId string) error {
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return errors.New("unauthorized")
	}
	if organizationId == "" {
		return errors.New("organization_id is required")
	}

	user, err := sessionUser(ctx, username)
	if err != nil {
		return err
	}
	if user.Role == models.UserRoleAdmin {
		return nil
	}
	if user.OrganizationId != organizationId {
		return errors.New("unauthorized")
	}
	return nil
}

func sessionUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		if db == nil {
			return nil, errors.New("db is nil")
		}
		if err := db.WithContext(ctx).Model(&models.User{}).
			Where("username = ?", username).Take(&user).Error; err != nil {
			return nil, errors.New("unauthorized")
		}
	}
	return &user, nil
}

func callerIsAdmin(ctx context.Context) bool {
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return false
	}
	user, err := sessionUser(ctx, username)
	if err != nil {
		return false
	}
	return user.Role == models.UserRoleAdmin
}

func mapRunToResponse(run *models.ImportRun) ImportRunResponse {
	startedAt := run.StartedAt
	return ImportRunResponse{
		ID:                  run.ID,
		ImportType:          run.ImportType,
		ImportDate:          run.ImportDate,
		Status:              run.Status,
		BookingsFound:       run.BookingsFound,
		BookingsImported:    run.BookingsImported,
		BookingsSkipped:     run.BookingsSkipped,
		BookingsFailed:      run.BookingsFailed,
		TriggeredBy:         run.TriggeredBy,
		StartedAt:           formatTime(&startedAt),
		CompletedAt:         formatTime(run.CompletedAt),
		HealthChecksCreated: run.HealthChecksCreated,
	}
}

func getConnection(db *gorm.DB, organizationId string) (*models.DmsConnection, error) {
	var conn models.DmsConnection
	err := db.Where("organization_id = ?", organizationId).Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func derefFormatted(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
