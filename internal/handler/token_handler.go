// Package handler はAPIエンドポイントのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/hcadmin/internal/middleware"
	"github.com/hitoshi/hcadmin/internal/model"
)

// TokenServiceInterface はトークン設定ハンドラーが必要とするサービスインターフェース。
type TokenServiceInterface interface {
	// SetToken はトークンを疎通確認してから暗号化保存する。
	SetToken(ctx context.Context, identity *model.Identity, token string) error
	// GetTokenStatus はトークン設定状態を返す。シークレット本体は含まない。
	GetTokenStatus(ctx context.Context, identity *model.Identity) (*model.CredentialStatus, error)
	// DeleteToken は保存済みトークンを削除する。
	DeleteToken(ctx context.Context, identity *model.Identity) error
}

// TokenHandler はAPIトークン設定のHTTPハンドラー。
type TokenHandler struct {
	service TokenServiceInterface
}

// NewTokenHandler はTokenHandlerを生成する。
func NewTokenHandler(service TokenServiceInterface) *TokenHandler {
	return &TokenHandler{service: service}
}

// setTokenRequest はトークン設定リクエストのボディ。
type setTokenRequest struct {
	Token string `json:"token"`
}

// tokenStatusResponse はトークン設定状態のAPIレスポンス。
// トークンの値そのものは決して含まない。
type tokenStatusResponse struct {
	HasToken     bool    `json:"has_token"`
	Source       string  `json:"source"`
	ConfiguredAt *string `json:"configured_at,omitempty"`
}

// SetToken はAPIトークンを設定する。
// PUT /api/token
func (h *TokenHandler) SetToken(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	var req setTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	if err := h.service.SetToken(r.Context(), identity, req.Token); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetTokenStatus はトークン設定状態を取得する。
// GET /api/token
func (h *TokenHandler) GetTokenStatus(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	status, err := h.service.GetTokenStatus(r.Context(), identity)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	resp := tokenStatusResponse{
		HasToken: status.HasToken,
		Source:   string(status.Source),
	}
	if status.ConfiguredAt != nil {
		configuredAt := status.ConfiguredAt.UTC().Format(time.RFC3339)
		resp.ConfiguredAt = &configuredAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteToken は保存済みトークンを削除する。
// DELETE /api/token
func (h *TokenHandler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	if err := h.service.DeleteToken(r.Context(), identity); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeInvalidBodyError はリクエストボディの解析失敗を統一フォーマットで返す。
func writeInvalidBodyError(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, middleware.ErrorResponseBody{
		Code:     model.ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}
