package api_test

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/rongwang/shinobu-server/internal/api/testutils"
	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAndFindWaifus(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	headers := testutils.AuthHeaders(testCtx.TestUserJWT)
	repotest.GiveWaifu(t, testCtx.Repository, testCtx.TestUserID, testutils.Rem.ID, 1)
	repotest.GiveWaifu(t, testCtx.Repository, testCtx.TestUserID, testutils.Asuna.ID, 3)

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/waifus", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	list := testutils.Decode[models.WaifusResponse](t, w)
	require.Len(t, list.Waifus, 2)
	assert.Equal(t, "Asuna", list.Waifus[0].Character.Name)
	assert.Equal(t, "Rem", list.Waifus[1].Character.Name)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/waifus/search?q=rezero", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Rem", testutils.Decode[models.WaifuResponse](t, w).Waifu.Character.Name)

	// Typos and word order still resolve
	searches := map[string]string{
		"Asnua":       "Asuna",
		"Remm":        "Rem",
		"zero rem":    "Rem",
		"re zero rem": "Rem",
		"qqq":         "Asuna",
	}
	for q, want := range searches {
		w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/waifus/search?q="+url.QueryEscape(q), nil, headers)
		require.Equal(t, http.StatusOK, w.Code, q)
		assert.Equal(t, want, testutils.Decode[models.WaifuResponse](t, w).Waifu.Character.Name, q)
	}

	// Other users' collections are separate
	_, bobToken := testCtx.CreateUser(t, "bob", 0)
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/waifus", nil, testutils.AuthHeaders(bobToken))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, testutils.Decode[models.WaifusResponse](t, w).Waifus)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/waifus/search?q=rem", nil, testutils.AuthHeaders(bobToken))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpgradeWaifu(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	headers := testutils.AuthHeaders(testCtx.TestUserJWT)
	rem := repotest.GiveWaifu(t, testCtx.Repository, testCtx.TestUserID, testutils.Rem.ID, 1)
	path := fmt.Sprintf("/api/waifus/%d/upgrade", rem.ID)

	// Test case 1: Common to Rare for 20
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, path,
		models.WaifuRef{CharacterID: testutils.Rem.ID, Rarity: 1}, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, testutils.Decode[models.WaifuResponse](t, w).Waifu.Rarity.Value)
	assert.Equal(t, int64(80), repotest.Balance(t, testCtx.Repository, testCtx.TestUserID))

	// Test case 2: Stale view of the waifu
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, path,
		models.WaifuRef{CharacterID: testutils.Rem.ID, Rarity: 1}, headers)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "OWNERSHIP_CHANGED", testutils.Decode[models.ErrorResponse](t, w).Code)

	// Test case 3: Rare to Epic for 50
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, path,
		models.WaifuRef{CharacterID: testutils.Rem.ID, Rarity: 2}, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(30), repotest.Balance(t, testCtx.Repository, testCtx.TestUserID))

	// Test case 4: Epic is the top
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, path,
		models.WaifuRef{CharacterID: testutils.Rem.ID, Rarity: 3}, headers)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_UPGRADABLE", testutils.Decode[models.ErrorResponse](t, w).Code)
	assert.Equal(t, int64(30), repotest.Balance(t, testCtx.Repository, testCtx.TestUserID))
}

func TestUpgradeWaifuInsufficientFunds(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	poor, token := testCtx.CreateUser(t, "poor", 10)
	rem := repotest.GiveWaifu(t, testCtx.Repository, poor, testutils.Rem.ID, 1)

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, fmt.Sprintf("/api/waifus/%d/upgrade", rem.ID),
		models.WaifuRef{CharacterID: testutils.Rem.ID, Rarity: 1}, testutils.AuthHeaders(token))
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	stored, err := testCtx.Repository.GetWaifu(t.Context(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Rarity.Value)
}

func TestRefundWaifu(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	headers := testutils.AuthHeaders(testCtx.TestUserJWT)
	asuna := repotest.GiveWaifu(t, testCtx.Repository, testCtx.TestUserID, testutils.Asuna.ID, 3)
	path := fmt.Sprintf("/api/waifus/%d/refund", asuna.ID)
	seen := models.WaifuRef{CharacterID: testutils.Asuna.ID, Rarity: 3}

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, path, seen, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(40), testutils.Decode[models.RefundResponse](t, w).Amount)
	assert.Equal(t, int64(140), repotest.Balance(t, testCtx.Repository, testCtx.TestUserID))

	// Already gone
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, path, seen, headers)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int64(140), repotest.Balance(t, testCtx.Repository, testCtx.TestUserID))

	// Someone else's waifu
	bob, _ := testCtx.CreateUser(t, "bob", 0)
	rem := repotest.GiveWaifu(t, testCtx.Repository, bob, testutils.Rem.ID, 1)
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, fmt.Sprintf("/api/waifus/%d/refund", rem.ID),
		models.WaifuRef{CharacterID: testutils.Rem.ID, Rarity: 1}, headers)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/waifus/abc/refund", seen, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
