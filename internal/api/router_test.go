package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendotrash/internal/api/handler"
	"vendotrash/internal/bridge"
	"vendotrash/internal/api/middleware"
	"vendotrash/internal/classifier"
	"vendotrash/internal/domain"
	"vendotrash/internal/repository"
	"vendotrash/internal/service"
	"vendotrash/internal/session"
)

const machineKey = "bridge-secret"

type memUserRepo struct {
	mu    sync.Mutex
	users []domain.User
}

func (r *memUserRepo) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.users {
		if x.Username == u.Username || x.Email == u.Email {
			return nil, repository.ErrDuplicateEntry
		}
	}
	u.ID = len(r.users) + 1
	u.IsActive = true
	r.users = append(r.users, *u)
	return u, nil
}

func (r *memUserRepo) find(match func(domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Username == username })
}

func (r *memUserRepo) FindByLogin(_ context.Context, login string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Username == login || strings.EqualFold(u.Email, login) })
}

func (r *memUserRepo) FindByID(_ context.Context, id int) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ID == id })
}

func (r *memUserRepo) List(_ context.Context, skip, limit int) ([]domain.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return nil, len(r.users), nil
}

type memTxRepo struct {
	mu  sync.Mutex
	txs []domain.Transaction
}

func (r *memTxRepo) CreateWithCounters(_ context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.CreatedAt = time.Now().UTC()
	r.txs = append(r.txs, *t)
	return t, nil
}

func (r *memTxRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.txs {
		if t.ID == id {
			cp := t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memTxRepo) ListByUser(_ context.Context, userID int, skip, limit int) ([]domain.Transaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transaction
	for _, t := range r.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func (r *memTxRepo) List(_ context.Context, skip, limit int) ([]domain.Transaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txs, len(r.txs), nil
}

type stubDetector struct {
	labels domain.LabelSet
	err    error
}

func (d *stubDetector) DetectLabels(context.Context, []byte) (domain.LabelSet, error) {
	return d.labels, d.err
}

type testServer struct {
	router   *gin.Engine
	auth     *service.AuthService
	users    *memUserRepo
	txs      *memTxRepo
	detector *stubDetector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := &memUserRepo{}
	txs := &memTxRepo{}
	detector := &stubDetector{labels: domain.LabelSet{{Name: "Plastic bottle", Confidence: 0.93}}}
	store := session.NewMemoryStore()

	auth := service.NewAuthService(users, "test-secret", time.Hour)
	ledger := service.NewLedgerService(txs)
	machines := service.NewMachineService(nil, nil, nil, "vendotrash/command")
	vendo := service.NewVendoService(
		session.NewGate(store, session.DefaultTTL),
		session.NewHistory(store, session.DefaultHistoryLimit),
		detector,
		classifier.New(classifier.DefaultOptions()),
		ledger,
		nil,
		nil,
		1,
	)

	router := SetupRouter(Services{
		Auth:    auth,
		Users:   service.NewUserService(users),
		Vendo:   vendo,
		Ledger:  ledger,
		Rewards: service.NewRewardService(nil, nil, users),
		Machine: machines,
	}, middleware.NewAuthMiddleware(auth, machineKey), handler.NewWebSocketManager())

	return &testServer{router: router, auth: auth, users: users, txs: txs, detector: detector}
}

func (s *testServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	w := s.do(http.MethodPost, "/auth/register", domain.RegisterUserDTO{
		Email: username + "@example.com", Username: username, Password: "hunter22",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/auth/login", domain.LoginUserDTO{Username: username, Password: "hunter22"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp domain.AuthResponseDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func bridgeHeaders(token string) map[string]string {
	h := map[string]string{"X-Machine-Key": machineKey}
	if token != "" {
		h["Authorization"] = "Bearer " + token
	}
	return h
}

var jpeg = base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff, 0xe0})

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestRouter_AuthRequired(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/users/me", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/users/me", nil, bearer("garbage")).Code)

	token := s.login(t, "ana")
	w := s.do(http.MethodGet, "/api/v1/users/me", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"ana"`)
	assert.NotContains(t, w.Body.String(), "hunter22")
}

func TestRouter_AdminOnlyRoutes(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ana")

	w := s.do(http.MethodPost, "/api/v1/vendo/command", domain.SortCommandDTO{MachineID: 1, Material: domain.MaterialPlastic}, bearer(token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin, err := s.auth.IssueToken(&domain.User{ID: 99, Username: "root", Role: domain.RoleAdmin})
	require.NoError(t, err)
	w = s.do(http.MethodPost, "/api/v1/vendo/command", domain.SortCommandDTO{MachineID: 1, Material: domain.MaterialPlastic}, bearer(admin))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "no IoT client configured in tests")
}

func TestRouter_BridgeFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ana")

	// nobody at the machine yet
	w := s.do(http.MethodGet, "/api/vendo/session-status", nil, bridgeHeaders(""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"has_session":false}`, w.Body.String())

	w = s.do(http.MethodPost, "/api/vendo/capture-and-classify", domain.ClassifyRequestDTO{ImageBase64: jpeg}, bridgeHeaders(token))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NO_SESSION"`)

	w = s.do(http.MethodPost, "/api/v1/vendo/prepare-insert", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"ttl_seconds":600`)

	w = s.do(http.MethodGet, "/api/vendo/active-token", nil, bridgeHeaders(""))
	require.Equal(t, http.StatusOK, w.Code)
	var tok domain.ActiveTokenDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
	assert.Equal(t, "success", tok.Status)
	assert.Equal(t, token, tok.Token)

	w = s.do(http.MethodPost, "/api/vendo/capture-and-classify", domain.ClassifyRequestDTO{ImageBase64: "data:image/jpeg;base64," + jpeg, MachineID: 2}, bridgeHeaders(tok.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp domain.ClassifyResponseDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.MaterialPlastic, resp.MaterialType)
	assert.Equal(t, 2, resp.PointsEarned)
	require.Len(t, s.txs.txs, 1)
	assert.Equal(t, 2, s.txs.txs[0].MachineID)

	w = s.do(http.MethodGet, "/api/v1/vendo/history", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	var hist []domain.DetectionHistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist, 1)
	assert.Equal(t, resp.TransactionID, hist[0].TransactionID.String)

	w = s.do(http.MethodGet, "/api/v1/transactions/"+resp.TransactionID, nil, bearer(token))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/v1/vendo/end-insert", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ended":true}`, w.Body.String())
}

func TestRouter_BridgeRejectsTokenOfPreviousCustomer(t *testing.T) {
	s := newTestServer(t)
	ana := s.login(t, "ana")
	bob := s.login(t, "bob")

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/vendo/prepare-insert", nil, bearer(ana)).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/vendo/prepare-insert", nil, bearer(bob)).Code)

	w := s.do(http.MethodPost, "/api/vendo/capture-and-classify", domain.ClassifyRequestDTO{ImageBase64: jpeg}, bridgeHeaders(ana))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NOT_ACTIVE_CUSTOMER"`)
	assert.Empty(t, s.txs.txs)

	// ana's own app still classifies within her window
	w = s.do(http.MethodPost, "/api/v1/vendo/classify", domain.ClassifyRequestDTO{ImageBase64: jpeg}, bearer(ana))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRouter_BridgeClientCreditsCurrentCustomer(t *testing.T) {
	s := newTestServer(t)
	ana := s.login(t, "ana")
	bob := s.login(t, "bob")
	anaUser, err := s.users.FindByUsername(context.Background(), "ana")
	require.NoError(t, err)
	bobUser, err := s.users.FindByUsername(context.Background(), "bob")
	require.NoError(t, err)

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)
	client := bridge.NewServerClient(srv.URL, machineKey, bridge.DefaultTokenTTL)
	ctx := context.Background()
	image := []byte{0xff, 0xd8, 0xff, 0xe0}

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/vendo/prepare-insert", nil, bearer(ana)).Code)
	require.Equal(t, domain.SignalPlastic, client.ClassifyDeposit(ctx, image, 1))
	require.Len(t, s.txs.txs, 1)
	assert.Equal(t, anaUser.ID, s.txs.txs[0].UserID)

	// bob takes over while ana's window is still open and her token is cached
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/vendo/prepare-insert", nil, bearer(bob)).Code)
	require.Equal(t, domain.SignalPlastic, client.ClassifyDeposit(ctx, image, 1))
	require.Len(t, s.txs.txs, 2)
	assert.Equal(t, bobUser.ID, s.txs.txs[1].UserID)

	// ana leaves after bob arrived; bob keeps the machine
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/vendo/end-insert", nil, bearer(ana)).Code)
	require.Equal(t, domain.SignalPlastic, client.ClassifyDeposit(ctx, image, 1))
	require.Len(t, s.txs.txs, 3)
	assert.Equal(t, bobUser.ID, s.txs.txs[2].UserID)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/vendo/end-insert", nil, bearer(bob)).Code)
	assert.Equal(t, domain.SignalNoSession, client.ClassifyDeposit(ctx, image, 1))
	assert.Len(t, s.txs.txs, 3)
}

func TestRouter_BridgeNeedsMachineKey(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/vendo/session-status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/vendo/test", nil, map[string]string{"X-Machine-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/vendo/test", nil, bridgeHeaders(""))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ClassifyErrors(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ana")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/vendo/prepare-insert", nil, bearer(token)).Code)

	w := s.do(http.MethodPost, "/api/v1/vendo/classify", domain.ClassifyRequestDTO{ImageBase64: "%%%"}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/vendo/classify", map[string]string{}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.detector.err = service.ErrVisionUnavailable
	w = s.do(http.MethodPost, "/api/v1/vendo/classify", domain.ClassifyRequestDTO{ImageBase64: jpeg}, bearer(token))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, s.txs.txs)
}

func TestRouter_TransactionIDValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ana")

	w := s.do(http.MethodGet, "/api/v1/transactions/not-a-uuid", nil, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/transactions/"+uuid.NewString(), nil, bearer(token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/v1/transactions?limit=5000", nil, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/transactions", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"total":0,"skip":0,"limit":20,"has_more":false}`, w.Body.String())
}
