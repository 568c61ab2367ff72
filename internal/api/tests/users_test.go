package api_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/rongwang/shinobu-server/internal/api/testutils"
	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetBirthday(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	headers := testutils.AuthHeaders(testCtx.TestUserJWT)

	// Test case 1: Bad date
	w := testutils.PerformRequest(testCtx.Router, http.MethodPut, "/api/me/birthday",
		models.BirthdayRequest{Birthday: "May 17th"}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_BIRTHDAY", testutils.Decode[models.ErrorResponse](t, w).Code)

	// Test case 2: Missing field
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/api/me/birthday", map[string]string{}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", testutils.Decode[models.ErrorResponse](t, w).Code)

	// Test case 3: Saved and shown on the profile
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/api/me/birthday",
		models.BirthdayRequest{Birthday: "2000-01-01"}, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	next := testutils.Decode[models.BirthdayResponse](t, w).NextBirthday
	assert.Regexp(t, `^\d{4}-01-01$`, next)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/me", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	profile := testutils.Decode[models.ProfileResponse](t, w)
	require.NotNil(t, profile.Birthday)
	assert.Equal(t, next, *profile.Birthday)

	// Test case 4: Only once
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/api/me/birthday",
		models.BirthdayRequest{Birthday: "2000-02-02"}, headers)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "BIRTHDAY_ALREADY_SET", testutils.Decode[models.ErrorResponse](t, w).Code)
}

func TestGetUser(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	headers := testutils.AuthHeaders(testCtx.TestUserJWT)
	bob, _ := testCtx.CreateUser(t, "bob", 42)

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, fmt.Sprintf("/api/users/%d", bob), nil, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := testutils.Decode[models.UserResponse](t, w)
	assert.Equal(t, bob, view.UserID)
	assert.Equal(t, "bob", view.Name)
	assert.Equal(t, int64(42), view.Balance)
	assert.Zero(t, view.Unwithdrawn)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, fmt.Sprintf("/api/users/%d", bob+100), nil, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/users/bob", nil, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, fmt.Sprintf("/api/users/%d", bob), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
