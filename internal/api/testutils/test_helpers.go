package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rongwang/shinobu-server/internal/api"
	"github.com/rongwang/shinobu-server/internal/config"
	"github.com/rongwang/shinobu-server/internal/draft"
	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/repository"
	"github.com/rongwang/shinobu-server/internal/repository/repotest"
	"github.com/rongwang/shinobu-server/internal/service"
	"github.com/rongwang/shinobu-server/internal/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Characters seeded into every test catalog
var (
	Rem     = models.Character{ID: 1, Name: "Rem", Series: "Re:Zero", Rarity: 1}
	Megumin = models.Character{ID: 2, Name: "Megumin", Series: "Konosuba", Rarity: 1}
	Asuna   = models.Character{ID: 3, Name: "Asuna", Series: "Sword Art Online", Rarity: 3}
)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router      *gin.Engine
	Repository  *repository.SQLRepository
	Service     service.Service
	Config      *config.Config
	JWTSecret   []byte
	TestUserID  models.ActorID
	TestUserJWT string
}

// SetupTestContext creates a new test context backed by a fresh SQLite database
func SetupTestContext(t *testing.T) *TestContext {
	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret-key",
			TokenDuration: time.Hour,
		},
		Economy: config.EconomyConfig{
			StartingBalance: 100,
			ApprovalTimeout: 5 * time.Second,
			IncomeInterval:  5 * time.Hour,
			IncomeCap:       10,
			BirthdayGift:    100,
		},
	}

	// Set up database
	repo := repotest.NewSQLite(t)
	repotest.SeedCatalog(t, repo, Rem, Megumin, Asuna)

	// Create service
	logger := utils.NewDiscardLogger()
	engine := draft.NewEngine(repo, draft.WithRand(rand.New(rand.NewPCG(1, 2))))
	svc := service.NewDefaultService(repo, cfg, service.WithDraftEngine(engine), service.WithLogger(logger))

	// Create API handler
	handler := api.NewHandler(svc, logger)

	// Set up Gin router
	gin.SetMode(gin.TestMode)
	router := gin.New()

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	// Set up routes
	handler.SetupRoutes(router)

	tc := &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		Config:     cfg,
		JWTSecret:  []byte(cfg.Auth.JWTSecret),
	}
	tc.TestUserID, tc.TestUserJWT = tc.CreateUser(t, "testuser", 100)
	return tc
}

// CreateUser inserts a user whose password is "testpassword" and returns its id and a valid token
func (tc *TestContext) CreateUser(t *testing.T, name string, balance int64) (models.ActorID, string) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("testpassword"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Email:     name + "@example.com",
		Name:      name,
		Password:  string(hashedPassword),
		Balance:   balance,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, tc.Repository.CreateUser(context.Background(), user), "Failed to create test user")

	// Generate JWT token with the provided secret key
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatInt(user.ID, 10),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})

	tokenString, err := token.SignedString(tc.JWTSecret)
	require.NoError(t, err, "Failed to generate JWT token")

	return user.ID, tokenString
}

// OnlyRarity makes value the only rarity that can be drawn
func (tc *TestContext) OnlyRarity(t *testing.T, value int) {
	for _, r := range repotest.Rarities {
		r.Weight = 0
		if r.Value == value {
			r.Weight = 1
		}
		require.NoError(t, tc.Repository.UpsertRarity(context.Background(), r))
	}
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// Decode unmarshals the recorded response body into a new T
func Decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "Failed to parse response: %s", w.Body.String())
	return v
}
