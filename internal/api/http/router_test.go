package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/petstore-api/internal/api/http/handlers"
	"github.com/spec-kit/petstore-api/internal/auth"
	"github.com/spec-kit/petstore-api/internal/docs"
	"github.com/spec-kit/petstore-api/internal/domain"
	"github.com/spec-kit/petstore-api/internal/observability"
	"github.com/spec-kit/petstore-api/internal/orm"
	"github.com/spec-kit/petstore-api/internal/service"
)

const testEndpoint = "http://localhost:3000/api"

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	data   *orm.MemoryClient
	user   string
	order  string
	sold   string
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	ctx := context.Background()

	data := orm.NewMemoryClient()
	hash, err := auth.HashPassword("correct", bcrypt.MinCost)
	require.NoError(t, err)
	user, err := data.Create(ctx, domain.ModelUser, domain.Record{"email": "a@x.com", "password": hash})
	require.NoError(t, err)
	order, err := data.Create(ctx, domain.ModelOrder, domain.Record{"userId": user.String(domain.FieldID)})
	require.NoError(t, err)
	sold, err := data.Create(ctx, domain.ModelPet, domain.Record{"name": "Fido", "category": "dog", "orderId": order.String(domain.FieldID)})
	require.NoError(t, err)
	_, err = data.Create(ctx, domain.ModelPet, domain.Record{"name": "Tom", "category": "cat"})
	require.NoError(t, err)

	tokens, err := auth.NewTokenManager("router-secret", time.Hour)
	require.NoError(t, err)

	logger := zap.NewNop()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	authService := service.NewAuthService(service.AuthDependencies{Users: data, Tokens: tokens, Logger: logger, Metrics: metrics})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	require.NoError(t, RegisterRoutes(app, RouteConfig{
		Health:      handlers.NewHealthHandler("petstore-api", "test", nil),
		Login:       handlers.NewLoginHandler(authService),
		Resolver:    auth.NewResolver(tokens, logger, metrics),
		Metrics:     metrics,
		Docs:        docs.Options{Strategy: docs.AssetsPackaged, BundleURL: "/bundle.js"},
		DataClient:  data,
		APIEndpoint: testEndpoint,
		BcryptCost:  bcrypt.MinCost,
	}))

	return testServer{
		app:    app,
		tokens: tokens,
		data:   data,
		user:   user.String(domain.FieldID),
		order:  order.String(domain.FieldID),
		sold:   sold.String(domain.FieldID),
	}
}

func (s testServer) do(t *testing.T, method, path, authz, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if authz != "" {
		req.Header.Set(fiber.HeaderAuthorization, authz)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func (s testServer) petIDs(t *testing.T, authz string) []string {
	t.Helper()
	status, raw := s.do(t, fiber.MethodGet, "/api/pet", authz, "")
	require.Equal(t, fiber.StatusOK, status)
	var env struct {
		Data []domain.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	ids := make([]string, 0, len(env.Data))
	for _, rec := range env.Data {
		ids = append(ids, rec.String(domain.FieldID))
	}
	return ids
}

func TestLogin_IssuesTokenForUser(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, fiber.MethodPost, "/api/login", "", `{"email":"a@x.com","password":"correct"}`)
	require.Equal(t, fiber.StatusOK, status)

	var res struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, s.user, res.ID)
	assert.Equal(t, "a@x.com", res.Email)

	claims, err := s.tokens.ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, s.user, claims.Subject)
}

func TestLogin_RejectsBadCredentialsUniformly(t *testing.T) {
	s := newTestServer(t)

	wrongStatus, wrongBody := s.do(t, fiber.MethodPost, "/api/login", "", `{"email":"a@x.com","password":"nope"}`)
	unknownStatus, unknownBody := s.do(t, fiber.MethodPost, "/api/login", "", `{"email":"z@x.com","password":"correct"}`)

	assert.Equal(t, fiber.StatusUnauthorized, wrongStatus)
	assert.Equal(t, fiber.StatusUnauthorized, unknownStatus)
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, string(wrongBody))
	assert.Equal(t, wrongBody, unknownBody)
}

func TestLogin_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, fiber.MethodPost, "/api/login", "", `{"email":"a@x.com"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAPI_IdentityScopesData(t *testing.T) {
	s := newTestServer(t)

	anonymous := s.petIDs(t, "")
	assert.NotContains(t, anonymous, s.sold)
	assert.Len(t, anonymous, 1)

	token, _, err := s.tokens.GenerateToken(s.user)
	require.NoError(t, err)
	owner := s.petIDs(t, "Bearer "+token)
	assert.Contains(t, owner, s.sold)
	assert.Len(t, owner, 2)

	tampered := token[:len(token)-2] + "xx"
	assert.Equal(t, anonymous, s.petIDs(t, "Bearer "+tampered))
	assert.Equal(t, anonymous, s.petIDs(t, "Basic dXNlcjpwYXNz"))
}

func TestAPI_LoginThenCreateOrder(t *testing.T) {
	s := newTestServer(t)

	_, raw := s.do(t, fiber.MethodPost, "/api/login", "", `{"email":"a@x.com","password":"correct"}`)
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(raw, &res))

	body := `{"userId":"` + s.user + `"}`
	status, _ := s.do(t, fiber.MethodPost, "/api/order", "", body)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, raw = s.do(t, fiber.MethodPost, "/api/order", "Bearer "+res.Token, body)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Contains(t, string(raw), testEndpoint+"/order/")
}

func TestDocs_ServedAlongsideAPI(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, fiber.MethodGet, "/api/docs", "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), docs.PackagedCSSPath)

	status, _ = s.do(t, fiber.MethodGet, "/api/docs/openapi.json", "", "")
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = s.do(t, fiber.MethodGet, docs.PackagedCSSPath, "", "")
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = s.do(t, fiber.MethodGet, docs.PackagedBaseCSS, "", "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t)

	s.do(t, fiber.MethodPost, "/api/login", "", `{"email":"a@x.com","password":"nope"}`)

	status, _ := s.do(t, fiber.MethodGet, "/health/live", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = s.do(t, fiber.MethodGet, "/health/ready", "", "")
	assert.Equal(t, fiber.StatusOK, status)

	status, raw := s.do(t, fiber.MethodGet, "/metrics", "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `petstore_login_attempts_total{outcome="invalid_credentials"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, fiber.MethodGet, "/nowhere", "", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Contains(t, string(raw), "NOT_FOUND")
}
