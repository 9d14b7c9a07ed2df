package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kukusoko/kukusoko-backend/internal/orders"
	"github.com/kukusoko/kukusoko-backend/internal/payments"
	"github.com/kukusoko/kukusoko-backend/internal/reconcile"
	"github.com/kukusoko/kukusoko-backend/pkg/auth"
	"github.com/kukusoko/kukusoko-backend/pkg/config"
	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
	"github.com/kukusoko/kukusoko-backend/pkg/mpesa"
	"github.com/kukusoko/kukusoko-backend/pkg/pagination"
)

type stubOrdersService struct {
	list *orders.OrderList
}

func (s *stubOrdersService) Create(ctx context.Context, principal auth.Principal, input orders.CreateOrderInput) (*models.Order, error) {
	return &models.Order{ID: uuid.New()}, nil
}

func (s *stubOrdersService) Get(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

func (s *stubOrdersService) List(ctx context.Context, principal auth.Principal, status *enums.OrderStatus, params pagination.Params) (*orders.OrderList, error) {
	return s.list, nil
}

func (s *stubOrdersService) UpdateStatus(ctx context.Context, principal auth.Principal, orderID uuid.UUID, input orders.UpdateStatusInput) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: input.Status}, nil
}

func (s *stubOrdersService) Timeline(ctx context.Context, principal auth.Principal, orderID uuid.UUID) ([]models.OrderTimelineEvent, error) {
	return nil, nil
}

type stubPaymentsService struct{}

func (s *stubPaymentsService) Initiate(ctx context.Context, principal auth.Principal, input payments.InitiateInput) (*payments.InitiateResult, error) {
	return &payments.InitiateResult{}, nil
}

type stubReconcileService struct{}

func (s *stubReconcileService) HandleCallback(ctx context.Context, orderID uuid.UUID, payload mpesa.CallbackPayload) (*reconcile.CallbackResult, error) {
	return &reconcile.CallbackResult{PaymentStatus: enums.PaymentStatusConfirmed}, nil
}

func testRouterConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev", Port: "8080"},
		JWT: config.JWTConfig{
			Secret:            "test-secret",
			Issuer:            "kukusoko-test",
			ExpirationMinutes: 30,
		},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testRouterConfig()
	router := NewRouter(Deps{
		Config: cfg,
		Logger: logger.New(logger.Options{ServiceName: "router-test"}),
		OrdersSvc: &stubOrdersService{
			list: &orders.OrderList{Meta: pagination.NewMeta(pagination.Params{}, 0)},
		},
		PaymentsSvc:  &stubPaymentsService{},
		ReconcileSvc: &stubReconcileService{},
	})
	return router, cfg
}

func mintToken(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	require.NoError(t, err)
	return token
}

func TestHealthLive(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "live")
}

func TestOrdersRequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrdersListWithToken(t *testing.T) {
	router, cfg := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?page=1&limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, enums.ActorRoleCustomer))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOrderRespondsOK(t *testing.T) {
	router, cfg := newTestRouter(t)

	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":2}],"payment_type":"cash_on_delivery","subtotal":"200","total":"200"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, enums.ActorRoleCustomer))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data"`)
}

func TestStatusUpdateForbiddenForCustomers(t *testing.T) {
	router, cfg := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/"+uuid.NewString()+"/status", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, enums.ActorRoleCustomer))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCallbackRejectsBadOrderID(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback/order/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
