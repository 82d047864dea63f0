package endpoint_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/raihanakbr/lokapasar/config"
	"github.com/raihanakbr/lokapasar/endpoint"
	"github.com/raihanakbr/lokapasar/middleware"
	"github.com/raihanakbr/lokapasar/model"
	"github.com/raihanakbr/lokapasar/protection"
	"gorm.io/gorm"
)

type apiResp struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// doRequest executes a JSON request against the router and returns the recorder.
func doRequest(r http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

var endpointTestModels = []interface{}{
	&model.User{},
	&model.Session{},
	&model.LoginAttempt{},
	&model.IPBlock{},
	&model.IPBlockEvent{},
	&model.SecurityLog{},
}

// setupTestDB initializes a fresh test database with all models migrated.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.ConnectMySQL()
	if err != nil {
		t.Fatalf("failed to connect test DB: %v", err)
	}
	if err := db.AutoMigrate(endpointTestModels...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Migrator().DropTable(endpointTestModels...); err != nil {
			t.Errorf("failed to drop tables during cleanup: %v", err)
		}
	})
	return db
}

// relaxedProtectionOptions keeps the login throttle out of the way for tests
// that exercise unrelated behavior.
func relaxedProtectionOptions() protection.Options {
	return protection.Options{
		IdentifierWindowSeconds: 600,
		IdentifierMaxAttempts:   1000,
		IPWindowSeconds:         600,
		IPMaxAttempts:           1000,
		IPBlockAfterAttempts:    1000,
		IPBlockCooldownSeconds:  1800,
	}
}

// pinProtectionOptions fixes the login protection thresholds for one test.
func pinProtectionOptions(t *testing.T, opts protection.Options) {
	t.Helper()
	endpoint.SetProtectionOptionsForTest(protection.StaticOptions(opts))
	t.Cleanup(func() {
		endpoint.SetProtectionOptionsForTest(nil)
	})
}

// setupTestRouter wires the full route table the way main does.
func setupTestRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.DatabaseMiddleware(db))

	r.POST("/signup", endpoint.Signup)
	r.POST("/login", endpoint.Login)
	r.GET("/token/validate", endpoint.ValidateToken)

	auth := r.Group("/")
	auth.Use(middleware.ValidateLoginToken())
	{
		auth.DELETE("/logout", endpoint.Logout)
		auth.POST("/verify-password", endpoint.VerifyPassword)
		auth.PATCH("/user", endpoint.UpdateUser)

		userAdmin := auth.Group("/user")
		userAdmin.Use(middleware.RequireStaff())
		{
			userAdmin.GET("", endpoint.ListUsers)
			userAdmin.GET("/:id", endpoint.GetUserInfo)
			userAdmin.PATCH("/:id", endpoint.AdminUpdateUser)
			userAdmin.DELETE("/:id", endpoint.DeleteUser)
		}

		security := auth.Group("/security")
		security.Use(middleware.RequireStaff())
		{
			security.GET("/attempts", endpoint.ListLoginAttempts)
			security.GET("/blocks", endpoint.ListIPBlocks)
			security.GET("/events", endpoint.ListIPEvents)
			security.DELETE("/blocks/:ip", endpoint.UnblockIP)
		}
	}

	return r
}

// setupServer builds a DB and router with the throttle relaxed.
func setupServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	pinProtectionOptions(t, relaxedProtectionOptions())
	db := setupTestDB(t)
	return setupTestRouter(db), db
}

type signupCreds struct {
	Name     string
	Email    string
	Password string
}

// createAndLoginUser signs up and logs in a user, returning session token and user id.
func createAndLoginUser(t *testing.T, r http.Handler, creds signupCreds) (string, uint) {
	t.Helper()

	signupBody, _ := json.Marshal(map[string]string{"name": creds.Name, "email": creds.Email, "password": creds.Password})
	rr := doRequest(r, "POST", "/signup", signupBody, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("signup %s returned non-200: %d %s", creds.Email, rr.Code, rr.Body.String())
	}

	loginBody, _ := json.Marshal(map[string]string{"email": creds.Email, "password": creds.Password})
	rr = doRequest(r, "POST", "/login", loginBody, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s returned non-200: %d %s", creds.Email, rr.Code, rr.Body.String())
	}

	resp := parseAPIResp(t, rr)
	var data struct {
		Token   string `json:"token"`
		UserID  uint   `json:"user_id"`
		IsStaff bool   `json:"is_staff"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("parse login data failed: %v", err)
	}
	if data.Token == "" {
		t.Fatalf("login %s returned empty token", creds.Email)
	}
	return data.Token, data.UserID
}

// promoteToStaff flips the staff flag on an existing user.
func promoteToStaff(t *testing.T, db *gorm.DB, userID uint) {
	t.Helper()
	if err := db.Model(&model.User{}).Where("id = ?", userID).Update("is_staff", true).Error; err != nil {
		t.Fatalf("failed to promote user %d to staff: %v", userID, err)
	}
}

// createAndLoginStaff signs up a user, promotes them, and logs in again so the
// session carries the staff flag.
func createAndLoginStaff(t *testing.T, r http.Handler, db *gorm.DB, creds signupCreds) (string, uint) {
	t.Helper()
	_, userID := createAndLoginUser(t, r, creds)
	promoteToStaff(t, db, userID)

	loginBody, _ := json.Marshal(map[string]string{"email": creds.Email, "password": creds.Password})
	rr := doRequest(r, "POST", "/login", loginBody, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("staff login %s returned non-200: %d %s", creds.Email, rr.Code, rr.Body.String())
	}
	resp := parseAPIResp(t, rr)
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("parse staff login data failed: %v", err)
	}
	return data.Token, userID
}

// parseAPIResp decodes a standard API response from a ResponseRecorder.
func parseAPIResp(t *testing.T, rr *httptest.ResponseRecorder) apiResp {
	t.Helper()
	var resp apiResp
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v; body: %s", err, rr.Body.String())
	}
	return resp
}

// parseDataToMap unmarshals an API response Data field into a map.
func parseDataToMap(t *testing.T, raw json.RawMessage) map[string]interface{} {
	t.Helper()
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("parse data failed: %v", err)
	}
	return data
}

// countLedgerRows counts login attempt rows matching a reason.
func countLedgerRows(t *testing.T, db *gorm.DB, reason string) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&model.LoginAttempt{}).Where("reason = ?", reason).Count(&count).Error; err != nil {
		t.Fatalf("failed to count ledger rows: %v", err)
	}
	return count
}
