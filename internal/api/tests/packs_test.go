package api_test

import (
	"net/http"
	"testing"

	"github.com/rongwang/shinobu-server/internal/api/testutils"
	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPacks(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/packs",
		nil,
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)

	require.Equal(t, http.StatusOK, w.Code)
	resp := testutils.Decode[models.PacksResponse](t, w)
	require.Len(t, resp.Packs, 1)
	assert.Equal(t, "Starter", resp.Packs[0].Name)
	assert.Equal(t, int64(10), resp.Packs[0].Cost)
}

func TestBuyPack(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	testCtx.OnlyRarity(t, 1)
	headers := testutils.AuthHeaders(testCtx.TestUserJWT)

	// Test case 1: Successful purchase, pack names match loosely
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/packs/buy",
		models.BuyPackRequest{Pack: " starter "},
		headers,
	)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutils.Decode[models.BuyPackResponse](t, w)
	assert.Equal(t, "none", resp.Duplicate)
	assert.Equal(t, testCtx.TestUserID, resp.Waifu.Owner)
	assert.Equal(t, "Common", resp.Waifu.Rarity.Name)
	assert.Contains(t, []string{"Rem", "Megumin"}, resp.Waifu.Character.Name)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/me", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(90), testutils.Decode[models.ProfileResponse](t, w).Balance)

	// Test case 2: Unknown pack
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/packs/buy",
		models.BuyPackRequest{Pack: "Nope"},
		headers,
	)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_SUCH_PACK", testutils.Decode[models.ErrorResponse](t, w).Code)

	// Test case 3: Missing pack name
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/packs/buy", map[string]string{}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBuyPackInsufficientFunds(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	_, token := testCtx.CreateUser(t, "poor", 5)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/packs/buy",
		models.BuyPackRequest{Pack: "Starter"},
		testutils.AuthHeaders(token),
	)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", testutils.Decode[models.ErrorResponse](t, w).Code)
}

func TestBuyPackDuringTransaction(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	bob, _ := testCtx.CreateUser(t, "bob", 0)
	headers := testutils.AuthHeaders(testCtx.TestUserJWT)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/trade/money",
		models.MoneyTransferRequest{To: bob, Amount: 10},
		headers,
	)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/packs/buy",
		models.BuyPackRequest{Pack: "Starter"},
		headers,
	)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_IN_TRANSACTION", testutils.Decode[models.ErrorResponse](t, w).Code)
}

func TestBuyPackMisconfigured(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	// No rarity can be drawn
	testCtx.OnlyRarity(t, 0)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/packs/buy",
		models.BuyPackRequest{Pack: "Starter"},
		testutils.AuthHeaders(testCtx.TestUserJWT),
	)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "PACK_MISCONFIGURED", testutils.Decode[models.ErrorResponse](t, w).Code)
	assert.Equal(t, int64(100), repotest.Balance(t, testCtx.Repository, testCtx.TestUserID))
}
