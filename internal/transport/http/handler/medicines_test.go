package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medremind-api/internal/config"
	"github.com/medremind-api/internal/domain"
	jwtinfra "github.com/medremind-api/internal/infrastructure/jwt"
	"github.com/medremind-api/internal/transport/http/middleware"
)

// --- mock ---

type mockMedicineSvc struct{ mock.Mock }

func (m *mockMedicineSvc) Create(ctx context.Context, userID string, req domain.CreateMedicineRequest) (*domain.Medicine, error) {
	args := m.Called(ctx, userID, req)
	if med, _ := args.Get(0).(*domain.Medicine); med != nil {
		return med, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMedicineSvc) Get(ctx context.Context, medicineID, userID string) (*domain.Medicine, error) {
	args := m.Called(ctx, medicineID, userID)
	if med, _ := args.Get(0).(*domain.Medicine); med != nil {
		return med, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMedicineSvc) ListByUser(ctx context.Context, userID string) ([]domain.Medicine, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Medicine), args.Error(1)
}

func (m *mockMedicineSvc) Update(ctx context.Context, medicineID, userID string, req domain.UpdateMedicineRequest) (*domain.Medicine, error) {
	args := m.Called(ctx, medicineID, userID, req)
	if med, _ := args.Get(0).(*domain.Medicine); med != nil {
		return med, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMedicineSvc) Delete(ctx context.Context, medicineID, userID string) error {
	return m.Called(ctx, medicineID, userID).Error(0)
}

func (m *mockMedicineSvc) MarkTaken(ctx context.Context, medicineID, userID, date, taken string) (*domain.DoseDayState, error) {
	args := m.Called(ctx, medicineID, userID, date, taken)
	if st, _ := args.Get(0).(*domain.DoseDayState); st != nil {
		return st, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMedicineSvc) Refill(ctx context.Context, medicineID, userID string) (*domain.Medicine, error) {
	args := m.Called(ctx, medicineID, userID)
	if med, _ := args.Get(0).(*domain.Medicine); med != nil {
		return med, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

// newTestJWTProvider generates a fresh RSA key pair and returns a *jwtinfra.Provider.
func newTestJWTProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	p, err := jwtinfra.NewProvider(&config.Config{
		JWTPrivateKeyPath: privPath,
		JWTPublicKeyPath:  pubPath,
		JWTExpiryDays:     1,
	})
	require.NoError(t, err)
	return p
}

// bearerReq builds a request with a signed Bearer token for the given userID and role.
func bearerReq(t *testing.T, p *jwtinfra.Provider, method, target, userID, role string, body []byte) *http.Request {
	t.Helper()
	token, err := p.Sign(userID, role, "sess1")
	require.NoError(t, err)
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// withChiID injects a chi URL param "id" into the request context.
func withChiID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// serveAuthed wraps the handler with middleware.Auth before serving.
func serveAuthed(p *jwtinfra.Provider, h http.Handler, w http.ResponseWriter, r *http.Request) {
	middleware.Auth(p)(h).ServeHTTP(w, r)
}

// --- Create tests ---

func TestCreateMedicine_MissingClaims(t *testing.T) {
	svc := &mockMedicineSvc{}
	h := NewMedicineHandler(svc)
	r := httptest.NewRequest(http.MethodPost, "/v1/medicines", bytes.NewBufferString("{}"))
	rr := httptest.NewRecorder()
	h.Create(rr, r)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateMedicine_ValidationFailure(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockMedicineSvc{}
	h := NewMedicineHandler(svc)
	body, _ := json.Marshal(domain.CreateMedicineRequest{Name: "Aspirin"}) // missing required fields

	r := bearerReq(t, p, http.MethodPost, "/v1/medicines", "u1", domain.RoleUser, body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Create), rr, r)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateMedicine_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockMedicineSvc{}
	med := &domain.Medicine{MedicineID: "m1", UserID: "u1", Name: "Aspirin", Frequency: "1-0-1"}
	svc.On("Create", mock.Anything, "u1", mock.Anything).Return(med, nil)
	h := NewMedicineHandler(svc)
	body, _ := json.Marshal(domain.CreateMedicineRequest{
		Name: "Aspirin", Dosage: "100mg", Frequency: "1-0-1",
		StartDate: "2026-09-01", DurationDays: 30, TotalPills: 60,
	})

	r := bearerReq(t, p, http.MethodPost, "/v1/medicines", "u1", domain.RoleUser, body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Create), rr, r)

	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp domain.Medicine
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "m1", resp.MedicineID)
	svc.AssertExpectations(t)
}

// --- MarkTaken tests ---

func TestMarkTaken_InvalidBody(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockMedicineSvc{}
	h := NewMedicineHandler(svc)

	r := bearerReq(t, p, http.MethodPut, "/v1/medicines/m1/taken", "u1", domain.RoleUser, []byte("not-json"))
	r = withChiID(r, "m1")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.MarkTaken), rr, r)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMarkTaken_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockMedicineSvc{}
	state := &domain.DoseDayState{MedicineID: "m1", Date: "2026-09-01", Taken: "1-0", RemindersSent: "1-0"}
	svc.On("MarkTaken", mock.Anything, "m1", "u1", "2026-09-01", "1-0").Return(state, nil)
	h := NewMedicineHandler(svc)
	body, _ := json.Marshal(domain.MarkTakenRequest{Date: "2026-09-01", Taken: "1-0"})

	r := bearerReq(t, p, http.MethodPut, "/v1/medicines/m1/taken", "u1", domain.RoleUser, body)
	r = withChiID(r, "m1")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.MarkTaken), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.DoseDayState
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "1-0", resp.Taken)
	svc.AssertExpectations(t)
}

func TestMarkTaken_ForbiddenForNonOwner(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockMedicineSvc{}
	svc.On("MarkTaken", mock.Anything, "m1", "u2", "2026-09-01", "1-0").
		Return(nil, domain.ErrForbidden)
	h := NewMedicineHandler(svc)
	body, _ := json.Marshal(domain.MarkTakenRequest{Date: "2026-09-01", Taken: "1-0"})

	r := bearerReq(t, p, http.MethodPut, "/v1/medicines/m1/taken", "u2", domain.RoleUser, body)
	r = withChiID(r, "m1")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.MarkTaken), rr, r)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	svc.AssertExpectations(t)
}

// --- Refill tests ---

func TestRefill_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockMedicineSvc{}
	med := &domain.Medicine{MedicineID: "m1", UserID: "u1", TotalPills: 60, DurationDays: 30}
	svc.On("Refill", mock.Anything, "m1", "u1").Return(med, nil)
	h := NewMedicineHandler(svc)

	r := bearerReq(t, p, http.MethodPost, "/v1/medicines/m1/refill", "u1", domain.RoleUser, nil)
	r = withChiID(r, "m1")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Refill), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.Medicine
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 60, resp.TotalPills)
	svc.AssertExpectations(t)
}

func TestRefill_NotFound(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockMedicineSvc{}
	svc.On("Refill", mock.Anything, "m1", "u1").Return(nil, domain.ErrNotFound)
	h := NewMedicineHandler(svc)

	r := bearerReq(t, p, http.MethodPost, "/v1/medicines/m1/refill", "u1", domain.RoleUser, nil)
	r = withChiID(r, "m1")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Refill), rr, r)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	svc.AssertExpectations(t)
}

// --- List tests ---

func TestListMedicines_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockMedicineSvc{}
	svc.On("ListByUser", mock.Anything, "u1").
		Return([]domain.Medicine{{MedicineID: "m1"}, {MedicineID: "m2"}}, nil)
	h := NewMedicineHandler(svc)

	r := bearerReq(t, p, http.MethodGet, "/v1/medicines", "u1", domain.RoleUser, nil)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.List), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp []domain.Medicine
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Len(t, resp, 2)
	svc.AssertExpectations(t)
}
