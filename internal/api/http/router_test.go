package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/api/http/handlers"
	"github.com/spec-kit/repairdesk/internal/auth"
	"github.com/spec-kit/repairdesk/internal/config"
	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/events"
	"github.com/spec-kit/repairdesk/internal/observability"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/service"
	"github.com/spec-kit/repairdesk/internal/storage"
)

type testServer struct {
	app    *fiber.App
	users  *repository.MemoryAccountStore
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	cfg := &config.Config{
		App:     config.AppConfig{Name: "repairdesk-test", Version: "test", CORSOrigins: "*"},
		Storage: config.StorageConfig{MaxUploadBytes: 1 << 20, MaxAttachmentFiles: 3},
	}

	users, payments := repository.NewMemoryAccountStore()
	files, err := storage.NewLocalStorage(t.TempDir(), cfg.Storage.MaxUploadBytes, cfg.Storage.MaxAttachmentFiles)
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager("test-secret", 60)
	authMiddleware := auth.NewAuthMiddleware(tokens, users, auth.NewMemoryRevocationStore())

	tickets := repository.NewMemoryTicketRepository()
	ticketService := service.NewTicketService(service.TicketDependencies{
		Tickets:    tickets,
		Users:      users,
		Payments:   payments,
		Storage:    files,
		Dispatcher: events.NewInMemoryDispatcher(),
		Metrics:    metrics,
		Logger:     logger,
	})

	app := NewApp(cfg, logger, metrics)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, nil),
		Auth:           handlers.NewAuthHandler(service.NewAuthService(users, tokens, 4, logger), authMiddleware),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Users:          handlers.NewUsersHandler(service.NewUserService(users, tickets, logger)),
		PaymentMethods: handlers.NewPaymentMethodsHandler(service.NewPaymentService(payments)),
		AuthMiddleware: authMiddleware,
		RateLimiter:    NewRateLimiter(0, 0),
		Metrics:        metrics,
	})
	return &testServer{app: app, users: users, tokens: tokens}
}

// seedUser stores a user with the given role and returns a bearer token for it.
func (s *testServer) seedUser(t *testing.T, name string, role domain.Role) (*domain.User, string) {
	t.Helper()
	user := &domain.User{Name: name, Email: strings.ToLower(name) + "@example.com", Role: role, Active: true}
	require.NoError(t, s.users.Create(context.Background(), user))
	token, _, err := s.tokens.GenerateToken(user)
	require.NoError(t, err)
	return user, token
}

func (s *testServer) do(t *testing.T, req *nethttp.Request, token string) (int, map[string]any) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, int((5 * time.Second).Milliseconds()))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp.StatusCode, body
}

func jsonRequest(t *testing.T, method, path string, payload any) *nethttp.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	return req
}

func ticketForm(t *testing.T, fields map[string]string) *nethttp.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("attachments", "screen.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("not really a png"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(nethttp.MethodPost, "/api/tickets", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data envelope: %v", body)
	return d
}

func errorCode(body map[string]any) string {
	env, _ := body["error"].(map[string]any)
	code, _ := env["code"].(string)
	return code
}

func TestRegisterLoginAndMe(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, jsonRequest(t, nethttp.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ulysse", "email": "ulysse@example.com", "password": "s3cretpass",
	}), "")
	require.Equal(t, nethttp.StatusCreated, status)
	user := data(t, body)["user"].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, user, "passwordHash")

	status, body = s.do(t, jsonRequest(t, nethttp.MethodPost, "/api/auth/login", map[string]string{
		"email": "ulysse@example.com", "password": "s3cretpass",
	}), "")
	require.Equal(t, nethttp.StatusOK, status)
	token := data(t, body)["token"].(string)
	require.NotEmpty(t, token)

	status, body = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/api/auth/me", nil), token)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "ulysse@example.com", data(t, body)["email"])

	status, _ = s.do(t, httptest.NewRequest(nethttp.MethodPost, "/api/auth/logout", nil), token)
	assert.Equal(t, nethttp.StatusNoContent, status)
	status, body = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/api/auth/me", nil), token)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestLoginWrongPassword(t *testing.T) {
	s := newTestServer(t)
	s.do(t, jsonRequest(t, nethttp.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ursula", "email": "ursula@example.com", "password": "s3cretpass",
	}), "")

	status, body := s.do(t, jsonRequest(t, nethttp.MethodPost, "/api/auth/login", map[string]string{
		"email": "ursula@example.com", "password": "wrong-password",
	}), "")
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestRegisterValidationEnvelope(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, jsonRequest(t, nethttp.MethodPost, "/api/auth/register", map[string]string{
		"name": "x", "email": "not-an-email", "password": "short",
	}), "")
	require.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	_, userToken := s.seedUser(t, "Ulysse", domain.RoleUser)
	freelancer, freelancerToken := s.seedUser(t, "Felix", domain.RoleFreelancer)

	status, body := s.do(t, ticketForm(t, map[string]string{
		"title": "Laptop will not boot", "description": "Black screen after update", "category": "hardware",
	}), userToken)
	require.Equal(t, nethttp.StatusPaymentRequired, status)
	assert.Equal(t, "PAYMENT_METHOD_REQUIRED", errorCode(body))

	status, _ = s.do(t, jsonRequest(t, nethttp.MethodPost, "/api/payment-methods", map[string]any{
		"provider": "stripe", "providerRef": "pm_123", "brand": "visa", "last4": "4242",
	}), userToken)
	require.Equal(t, nethttp.StatusCreated, status)

	status, body = s.do(t, ticketForm(t, map[string]string{
		"title": "Laptop will not boot", "description": "Black screen after update", "category": "hardware",
	}), userToken)
	require.Equal(t, nethttp.StatusCreated, status)
	ticket := data(t, body)
	ticketID := ticket["id"].(string)
	assert.Equal(t, "libre", ticket["status"])
	assert.Equal(t, "medium", ticket["priority"])
	assert.NotContains(t, ticket, "assignedTo")
	require.Len(t, ticket["attachments"], 1)

	status, body = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/api/tickets/unassigned", nil), freelancerToken)
	require.Equal(t, nethttp.StatusOK, status)
	assert.EqualValues(t, 1, data(t, body)["total"])

	status, body = s.do(t, httptest.NewRequest(nethttp.MethodPost, "/api/tickets/"+ticketID+"/diagnostic", nil), freelancerToken)
	require.Equal(t, nethttp.StatusOK, status)
	claimed := data(t, body)
	assert.Equal(t, "diagnostic", claimed["status"])
	assert.Equal(t, freelancer.ID, claimed["assignedTo"])

	status, body = s.do(t, httptest.NewRequest(nethttp.MethodPost, "/api/tickets/"+ticketID+"/diagnostic", nil), freelancerToken)
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(body))

	status, body = s.do(t, jsonRequest(t, nethttp.MethodPut, "/api/tickets/"+ticketID, map[string]string{"status": "online"}), freelancerToken)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "online", data(t, body)["status"])

	status, body = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/api/tickets/counts", nil), userToken)
	require.Equal(t, nethttp.StatusOK, status)
	counts := data(t, body)
	assert.EqualValues(t, 1, counts["online"])
	assert.EqualValues(t, 0, counts["libre"])
	assert.EqualValues(t, 1, counts["tous"])

	status, body = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/api/tickets/"+ticketID+"?order=desc", nil), userToken)
	require.Equal(t, nethttp.StatusOK, status)
	trail := data(t, body)["auditTrail"].([]any)
	require.NotEmpty(t, trail)
	newest := trail[0].(map[string]any)
	assert.Equal(t, "status_change", newest["action"])
	assert.Equal(t, "online", newest["details"].(map[string]any)["to"])

	status, _ = s.do(t, httptest.NewRequest(nethttp.MethodDelete, "/api/tickets/"+ticketID, nil), freelancerToken)
	assert.Equal(t, nethttp.StatusForbidden, status)
}

func TestUserCannotSeeOthersTicket(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.seedUser(t, "Adam", domain.RoleAdmin)
	owner, _ := s.seedUser(t, "Ulysse", domain.RoleUser)
	_, otherToken := s.seedUser(t, "Ursula", domain.RoleUser)

	status, body := s.do(t, ticketForm(t, map[string]string{
		"title": "Printer jam", "description": "Paper stuck", "category": "hardware", "targetUser": owner.ID,
	}), adminToken)
	require.Equal(t, nethttp.StatusCreated, status)
	ticketID := data(t, body)["id"].(string)

	status, body = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/api/tickets/"+ticketID, nil), otherToken)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestUrlencodedTicketFieldsSurviveLaterRequests(t *testing.T) {
	s := newTestServer(t)
	_, founderToken := s.seedUser(t, "Fanny", domain.RoleFounder)

	post := func(title, description, category string) string {
		form := url.Values{"title": {title}, "description": {description}, "category": {category}}
		req := httptest.NewRequest(nethttp.MethodPost, "/api/tickets", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
		status, body := s.do(t, req, founderToken)
		require.Equal(t, nethttp.StatusCreated, status, "body: %v", body)
		return data(t, body)["id"].(string)
	}

	firstID := post("AAAAAAAAAAAAAAAA", "aaaaaaaaaaaaaaaaaaaaaaaa", "hardware")
	fillers := []string{"ZZZZZZZZZZZZZZZZ", "YYYYYYYYYYYYYYYY", "xxxxxxxxxxxxxxxx"}
	for i := 0; i < 20; i++ {
		filler := fillers[i%len(fillers)]
		post(filler, strings.Repeat(filler[:1], 24), strings.ToLower(filler[:8]))
	}

	status, body := s.do(t, httptest.NewRequest(nethttp.MethodGet, "/api/tickets/"+firstID, nil), founderToken)
	require.Equal(t, nethttp.StatusOK, status)
	ticket := data(t, body)
	assert.Equal(t, "AAAAAAAAAAAAAAAA", ticket["title"])
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaa", ticket["description"])
	assert.Equal(t, "hardware", ticket["category"])
}

func TestUpdateOwnProfile(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, jsonRequest(t, nethttp.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ulysse", "email": "ulysse@example.com", "password": "s3cretpass",
	}), "")
	require.Equal(t, nethttp.StatusCreated, status)
	token := data(t, body)["token"].(string)

	status, body = s.do(t, jsonRequest(t, nethttp.MethodPatch, "/api/auth/me", map[string]string{
		"name": "  Ulysse B.  ", "clientType": "business", "role": "fondateur",
	}), token)
	require.Equal(t, nethttp.StatusOK, status)
	me := data(t, body)
	assert.Equal(t, "Ulysse B.", me["name"])
	assert.Equal(t, "business", me["clientType"])
	assert.Equal(t, "user", me["role"])

	status, body = s.do(t, jsonRequest(t, nethttp.MethodPatch, "/api/auth/me", map[string]string{
		"password": "n3wsecretpass", "currentPassword": "wrong-password",
	}), token)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, _ = s.do(t, jsonRequest(t, nethttp.MethodPatch, "/api/auth/me", map[string]string{
		"password": "n3wsecretpass", "currentPassword": "s3cretpass",
	}), token)
	require.Equal(t, nethttp.StatusOK, status)

	status, _ = s.do(t, jsonRequest(t, nethttp.MethodPost, "/api/auth/login", map[string]string{
		"email": "ulysse@example.com", "password": "s3cretpass",
	}), "")
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	status, _ = s.do(t, jsonRequest(t, nethttp.MethodPost, "/api/auth/login", map[string]string{
		"email": "ulysse@example.com", "password": "n3wsecretpass",
	}), "")
	assert.Equal(t, nethttp.StatusOK, status)
}

func TestDemotingBusyFreelancerConflicts(t *testing.T) {
	s := newTestServer(t)
	_, founderToken := s.seedUser(t, "Fanny", domain.RoleFounder)
	freelancer, freelancerToken := s.seedUser(t, "Felix", domain.RoleFreelancer)

	status, body := s.do(t, ticketForm(t, map[string]string{
		"title": "Router reboots", "description": "Every ten minutes", "category": "network",
	}), founderToken)
	require.Equal(t, nethttp.StatusCreated, status)
	ticketID := data(t, body)["id"].(string)

	status, _ = s.do(t, httptest.NewRequest(nethttp.MethodPost, "/api/tickets/"+ticketID+"/diagnostic", nil), freelancerToken)
	require.Equal(t, nethttp.StatusOK, status)

	status, body = s.do(t, jsonRequest(t, nethttp.MethodPut, "/api/users/"+freelancer.ID+"/role", map[string]string{"role": "user"}), founderToken)
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	status, body = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/api/tickets/"+ticketID, nil), founderToken)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, freelancer.ID, data(t, body)["assignedTo"])
}

func TestUsersEndpointsRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	_, freelancerToken := s.seedUser(t, "Felix", domain.RoleFreelancer)
	_, adminToken := s.seedUser(t, "Adam", domain.RoleAdmin)

	status, body := s.do(t, httptest.NewRequest(nethttp.MethodGet, "/api/users", nil), freelancerToken)
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, body = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/api/users/freelancers", nil), adminToken)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"], 1)
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, httptest.NewRequest(nethttp.MethodGet, "/api/nowhere", nil), "")
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, httptest.NewRequest(nethttp.MethodGet, "/health/ready", nil), "")
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	resp, err := s.app.Test(httptest.NewRequest(nethttp.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "http_requests_total")
}
