package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/hcadmin/internal/model"
)

// TestMiddlewareChain_Session_GETRequest は
// Session ミドルウェアでGETリクエストが通ることを検証する。
func TestMiddlewareChain_Session_GETRequest(t *testing.T) {
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, token string) (*model.Identity, error) {
			return testIdentity(), nil
		},
	}

	sessionMW := NewSessionMiddleware(verifier)

	var capturedInstanceID string
	handler := sessionMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		capturedInstanceID = identity.ExtensionInstanceID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if capturedInstanceID != "inst-1" {
		t.Errorf("instanceID = %q, want %q", capturedInstanceID, "inst-1")
	}
}

// TestMiddlewareChain_SessionThenRateLimit は
// Session -> RateLimit のチェーンで認証済みリクエストが制限されることを検証する。
func TestMiddlewareChain_SessionThenRateLimit(t *testing.T) {
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, token string) (*model.Identity, error) {
			return &model.Identity{ExtensionInstanceID: "inst-chain", ExtensionID: "ext-1", UserID: "user-1"}, nil
		},
	}

	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		MutationRate:    1,
		MutationBurst:   10,
		CleanupInterval: 1 * time.Minute,
	})
	defer rl.Stop()

	sessionMW := NewSessionMiddleware(verifier)
	corsMW := NewCORSMiddleware("http://localhost:3000")
	rateMW := rl.GeneralMiddleware()

	// CORS -> Session -> RateLimit -> Handler
	handler := corsMW(sessionMW(rateMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"extension_instance_id": identity.ExtensionInstanceID})
	}))))

	// バースト分（2回）は通る
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
		req.Header.Set("Authorization", "Bearer session-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	// 3回目は429
	req3 := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
	req3.Header.Set("Authorization", "Bearer session-token")
	w3 := httptest.NewRecorder()

	handler.ServeHTTP(w3, req3)

	if w3.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("request 3: status = %d, want %d", w3.Result().StatusCode, http.StatusTooManyRequests)
	}
}

// TestMiddlewareChain_NoSession_Returns401 は
// セッショントークンがない場合に401が返されることを検証する。
func TestMiddlewareChain_NoSession_Returns401(t *testing.T) {
	sessionMW := NewSessionMiddleware(&mockVerifier{})

	handler := sessionMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/servers", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	// セッション未認証で401が返ること
	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}
