package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"btc-advisor-bot/internal/model"
)

func TestTokenManagerIssueAndValidate(t *testing.T) {
	tm := NewTokenManager("secret")
	token, err := tm.Issue(time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !tm.Validate(token) {
		t.Error("Validate rejected a freshly issued token")
	}
}

func TestTokenManagerRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("secret")
	token, _ := tm.Issue(time.Minute)

	other := NewTokenManager("different")
	if other.Validate(token) {
		t.Error("Validate accepted a token signed with a different secret")
	}
}

func TestTokenManagerRejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager("secret")
	token, _ := tm.Issue(-time.Minute)
	if tm.Validate(token) {
		t.Error("Validate accepted an already-expired token")
	}
}

type fakeCore struct {
	stopCalled bool
}

func (f *fakeCore) Status(ctx context.Context) (StatusSnapshot, error) {
	return StatusSnapshot{Price: 100, Trend: "up"}, nil
}
func (f *fakeCore) Balance(ctx context.Context) (string, error) { return "1000.00", nil }
func (f *fakeCore) Position(ctx context.Context) (model.Position, error) {
	return model.Position{Side: model.SideFlat}, nil
}
func (f *fakeCore) Price(ctx context.Context) (string, error) { return "100.00", nil }
func (f *fakeCore) TriggerAnalyze(ctx context.Context, tf model.Timeframe) (bool, error) {
	if tf == model.Timeframe("bogus") {
		return false, errors.New("unknown timeframe")
	}
	return tf != model.Timeframe1h, nil // pretend 1h is already in flight
}
func (f *fakeCore) Last(ctx context.Context, tf model.Timeframe) (*model.Analysis, error) {
	if tf == model.Timeframe1d {
		return nil, nil
	}
	return &model.Analysis{Timeframe: tf}, nil
}
func (f *fakeCore) Trade(ctx context.Context) (model.TradeRecord, error) {
	return model.TradeRecord{ID: "t1"}, nil
}
func (f *fakeCore) Stop(ctx context.Context) error {
	f.stopCalled = true
	return nil
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	core := &fakeCore{}
	s := New(Config{ListenAddr: ":0", BearerToken: "secret"}, core)
	token, err := s.OperatorToken()
	if err != nil {
		t.Fatalf("OperatorToken: %v", err)
	}
	return s, token
}

func doRequest(s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointRequiresNoAuth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGuardedEndpointRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/status", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGuardedEndpointAcceptsValidToken(t *testing.T) {
	s, token := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/status", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestAnalyzeReturns409WhenAlreadyInFlight(t *testing.T) {
	s, token := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/analyze/1h", token)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body=%s", rec.Code, rec.Body.String())
	}
}

func TestAnalyzeReturns202WhenFired(t *testing.T) {
	s, token := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/analyze/4h", token)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
}

func TestLastReturns404WhenNoAnalysisRecorded(t *testing.T) {
	s, token := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/last/1d", token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLoginReturns404WhenNoAdminPasswordConfigured(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"x"}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLoginIssuesTokenOnCorrectPassword(t *testing.T) {
	core := &fakeCore{}
	pm := newPasswordManager()
	hash, err := pm.hash("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	s := New(Config{ListenAddr: ":0", BearerToken: "secret", AdminPasswordHash: hash}, core)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"hunter2"}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	core := &fakeCore{}
	pm := newPasswordManager()
	hash, err := pm.hash("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	s := New(Config{ListenAddr: ":0", BearerToken: "secret", AdminPasswordHash: hash}, core)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"wrong"}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestStopInvokesCore(t *testing.T) {
	core := &fakeCore{}
	s := New(Config{ListenAddr: ":0", BearerToken: "secret"}, core)
	token, _ := s.OperatorToken()

	rec := doRequest(s, http.MethodPost, "/stop", token)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if !core.stopCalled {
		t.Error("core.Stop was not called")
	}
}
