package endpoint_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/raihanakbr/lokapasar/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityEndpoints_RequireStaff(t *testing.T) {
	r, _ := setupServer(t)
	token, _ := createAndLoginUser(t, r, signupCreds{Name: "Plain", Email: "plain@example.com", Password: "pass1234"})

	for _, path := range []string{"/security/attempts", "/security/blocks", "/security/events"} {
		rr := doRequest(r, "GET", path, nil, map[string]string{"session-token": token})
		assert.Equal(t, http.StatusForbidden, rr.Code, "path %s", path)
	}

	rr := doRequest(r, "DELETE", "/security/blocks/203.0.113.1", nil, map[string]string{"session-token": token})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestListLoginAttempts_Filters(t *testing.T) {
	pinProtectionOptions(t, relaxedProtectionOptions())
	db := setupTestDB(t)
	r := setupTestRouter(db)
	token, _ := createAndLoginStaff(t, r, db, signupCreds{Name: "Admin", Email: "admin@example.com", Password: "pass1234"})

	rows := []model.LoginAttempt{
		{IPAddress: "203.0.113.1", UserIdentifier: "a@example.com", Reason: model.ReasonInvalidCredentials},
		{IPAddress: "203.0.113.1", UserIdentifier: "b@example.com", Reason: model.ReasonInvalidCredentials},
		{IPAddress: "203.0.113.2", UserIdentifier: "a@example.com", Reason: model.ReasonRateLimitedIP},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	rr := doRequest(r, "GET", "/security/attempts", nil, map[string]string{"session-token": token})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	data := parseDataToMap(t, parseAPIResp(t, rr).Data)
	assert.Equal(t, float64(3), data["total"])

	rr = doRequest(r, "GET", "/security/attempts?ip=203.0.113.1", nil, map[string]string{"session-token": token})
	require.Equal(t, http.StatusOK, rr.Code)
	data = parseDataToMap(t, parseAPIResp(t, rr).Data)
	assert.Equal(t, float64(2), data["total"])

	rr = doRequest(r, "GET", "/security/attempts?identifier=a@example.com", nil, map[string]string{"session-token": token})
	require.Equal(t, http.StatusOK, rr.Code)
	data = parseDataToMap(t, parseAPIResp(t, rr).Data)
	assert.Equal(t, float64(2), data["total"])
}

func TestListLoginAttempts_Pagination(t *testing.T) {
	pinProtectionOptions(t, relaxedProtectionOptions())
	db := setupTestDB(t)
	r := setupTestRouter(db)
	token, _ := createAndLoginStaff(t, r, db, signupCreds{Name: "Admin", Email: "admin@example.com", Password: "pass1234"})

	for i := 0; i < 7; i++ {
		row := model.LoginAttempt{IPAddress: "203.0.113.9", UserIdentifier: fmt.Sprintf("u%d@example.com", i), Reason: model.ReasonInvalidCredentials}
		require.NoError(t, db.Create(&row).Error)
	}

	rr := doRequest(r, "GET", "/security/attempts?limit=5", nil, map[string]string{"session-token": token})
	require.Equal(t, http.StatusOK, rr.Code)
	data := parseDataToMap(t, parseAPIResp(t, rr).Data)
	assert.Equal(t, float64(7), data["total"])
	assert.Equal(t, float64(5), data["total_fetched"])
	assert.Equal(t, true, data["has_more"])
	require.NotNil(t, data["next_cursor"])

	cursor := int(data["next_cursor"].(float64))
	rr = doRequest(r, "GET", fmt.Sprintf("/security/attempts?limit=5&cursor=%d", cursor), nil, map[string]string{"session-token": token})
	require.Equal(t, http.StatusOK, rr.Code)
	data = parseDataToMap(t, parseAPIResp(t, rr).Data)
	assert.Equal(t, float64(2), data["total_fetched"])
	assert.Equal(t, false, data["has_more"])
}

func TestListIPBlocks_ActiveFilter(t *testing.T) {
	pinProtectionOptions(t, relaxedProtectionOptions())
	db := setupTestDB(t)
	r := setupTestRouter(db)
	token, _ := createAndLoginStaff(t, r, db, signupCreds{Name: "Admin", Email: "admin@example.com", Password: "pass1234"})

	now := time.Now()
	lifted := now.Add(-time.Minute)
	blocks := []model.IPBlock{
		{IPAddress: "203.0.113.1", BlockedUntil: now.Add(time.Hour)},
		{IPAddress: "203.0.113.2", BlockedUntil: now.Add(-time.Hour)},
		{IPAddress: "203.0.113.3", BlockedUntil: now.Add(time.Hour), UnblockedAt: &lifted},
	}
	for i := range blocks {
		require.NoError(t, db.Create(&blocks[i]).Error)
	}

	rr := doRequest(r, "GET", "/security/blocks", nil, map[string]string{"session-token": token})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	data := parseDataToMap(t, parseAPIResp(t, rr).Data)
	assert.Equal(t, float64(3), data["total"])

	rr = doRequest(r, "GET", "/security/blocks?active=true", nil, map[string]string{"session-token": token})
	require.Equal(t, http.StatusOK, rr.Code)
	data = parseDataToMap(t, parseAPIResp(t, rr).Data)
	assert.Equal(t, float64(1), data["total"])
}

func TestListIPEvents_Filters(t *testing.T) {
	pinProtectionOptions(t, relaxedProtectionOptions())
	db := setupTestDB(t)
	r := setupTestRouter(db)
	token, _ := createAndLoginStaff(t, r, db, signupCreds{Name: "Admin", Email: "admin@example.com", Password: "pass1234"})

	events := []model.IPBlockEvent{
		{Action: model.BlockActionBlock, IPAddress: "203.0.113.1", Reason: model.BlockReasonTooManyFailures},
		{Action: model.BlockActionUnblock, IPAddress: "203.0.113.1", Reason: model.UnblockReasonCooldownExpired},
		{Action: model.BlockActionBlock, IPAddress: "203.0.113.2", Reason: model.BlockReasonTooManyFailures},
	}
	for i := range events {
		require.NoError(t, db.Create(&events[i]).Error)
	}

	rr := doRequest(r, "GET", "/security/events?action=block", nil, map[string]string{"session-token": token})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	data := parseDataToMap(t, parseAPIResp(t, rr).Data)
	assert.Equal(t, float64(2), data["total"])

	rr = doRequest(r, "GET", "/security/events?ip=203.0.113.1", nil, map[string]string{"session-token": token})
	require.Equal(t, http.StatusOK, rr.Code)
	data = parseDataToMap(t, parseAPIResp(t, rr).Data)
	assert.Equal(t, float64(2), data["total"])

	rr = doRequest(r, "GET", "/security/events?action=bogus", nil, map[string]string{"session-token": token})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnblockIP(t *testing.T) {
	pinProtectionOptions(t, relaxedProtectionOptions())
	db := setupTestDB(t)
	r := setupTestRouter(db)
	token, _ := createAndLoginStaff(t, r, db, signupCreds{Name: "Admin", Email: "admin@example.com", Password: "pass1234"})

	block := model.IPBlock{
		IPAddress:      "203.0.113.5",
		BlockedUntil:   time.Now().Add(time.Hour),
		LastIdentifier: "victim@example.com",
	}
	require.NoError(t, db.Create(&block).Error)

	rr := doRequest(r, "DELETE", "/security/blocks/203.0.113.5", nil, map[string]string{"session-token": token})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	var updated model.IPBlock
	require.NoError(t, db.First(&updated, block.ID).Error)
	require.NotNil(t, updated.UnblockedAt)

	var event model.IPBlockEvent
	require.NoError(t, db.Where("ip_address = ? AND action = ?", "203.0.113.5", model.BlockActionUnblock).First(&event).Error)
	assert.Equal(t, model.UnblockReasonManual, event.Reason)
	assert.Equal(t, "victim@example.com", event.UserIdentifier)

	// A second unblock finds no active block.
	rr = doRequest(r, "DELETE", "/security/blocks/203.0.113.5", nil, map[string]string{"session-token": token})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnblockIP_NotBlocked(t *testing.T) {
	pinProtectionOptions(t, relaxedProtectionOptions())
	db := setupTestDB(t)
	r := setupTestRouter(db)
	token, _ := createAndLoginStaff(t, r, db, signupCreds{Name: "Admin", Email: "admin@example.com", Password: "pass1234"})

	rr := doRequest(r, "DELETE", "/security/blocks/198.51.100.9", nil, map[string]string{"session-token": token})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	resp := parseAPIResp(t, rr)
	assert.Equal(t, "No active block for address", resp.Msg)
}
