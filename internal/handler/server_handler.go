package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hcadmin/internal/hcloud"
	"github.com/hitoshi/hcadmin/internal/middleware"
	"github.com/hitoshi/hcadmin/internal/model"
	"github.com/hitoshi/hcadmin/internal/server"
)

// ServerServiceInterface はサーバーハンドラーが必要とするサービスインターフェース。
type ServerServiceInterface interface {
	List(ctx context.Context, identity *model.Identity) ([]hcloud.Server, error)
	Get(ctx context.Context, identity *model.Identity, serverID int64) (*server.Detail, error)
	Create(ctx context.Context, identity *model.Identity, opts *hcloud.CreateServerOpts) (*hcloud.CreateServerResult, error)
	Delete(ctx context.Context, identity *model.Identity, serverID int64) (*hcloud.Action, error)
	PerformAction(ctx context.Context, identity *model.Identity, serverID int64, action string) (*hcloud.Action, error)
	ResetRootPassword(ctx context.Context, identity *model.Identity, serverID int64) (*hcloud.ResetPasswordResult, error)
	GetMetrics(ctx context.Context, identity *model.Identity, serverID int64, opts hcloud.MetricsOpts) (*hcloud.Metrics, error)
}

// ServerHandler はサーバー操作のHTTPハンドラー。
type ServerHandler struct {
	service ServerServiceInterface
}

// NewServerHandler はServerHandlerを生成する。
func NewServerHandler(service ServerServiceInterface) *ServerHandler {
	return &ServerHandler{service: service}
}

// serverActionRequest は電源系アクションのリクエストボディ。
type serverActionRequest struct {
	Action string `json:"action"`
}

// serverDetailResponse はサーバー詳細のAPIレスポンス。
type serverDetailResponse struct {
	Server     *hcloud.Server      `json:"server"`
	Assignment *assignmentResponse `json:"assignment,omitempty"`
	Notes      []noteResponse      `json:"notes"`
}

// listServersResponse はサーバー一覧のAPIレスポンス。
type listServersResponse struct {
	Servers []hcloud.Server `json:"servers"`
}

// List はサーバー一覧を取得する。
// GET /api/servers
func (h *ServerHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	servers, err := h.service.List(r.Context(), identity)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if servers == nil {
		servers = []hcloud.Server{}
	}

	writeJSON(w, http.StatusOK, listServersResponse{Servers: servers})
}

// Get はサーバー詳細をローカルメタデータとあわせて取得する。
// GET /api/servers/{id}
func (h *ServerHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	serverID, err := serverIDParam(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	detail, err := h.service.Get(r.Context(), identity, serverID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	resp := serverDetailResponse{
		Server: detail.Server,
		Notes:  make([]noteResponse, 0, len(detail.Notes)),
	}
	if detail.Assignment != nil {
		a := toAssignmentResponse(detail.Assignment)
		resp.Assignment = &a
	}
	for _, note := range detail.Notes {
		resp.Notes = append(resp.Notes, toNoteResponse(note))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Create はサーバーを作成する。
// POST /api/servers
//
// レスポンスのroot_passwordはそのまま透過する（SSH鍵未指定時のみ上流が返す）。
func (h *ServerHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	var opts hcloud.CreateServerOpts
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeInvalidBodyError(w)
		return
	}

	result, err := h.service.Create(r.Context(), identity, &opts)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Delete はサーバーを削除する。
// DELETE /api/servers/{id}
func (h *ServerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	serverID, err := serverIDParam(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	action, err := h.service.Delete(r.Context(), identity, serverID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*hcloud.Action{"action": action})
}

// PerformAction は電源系アクション（poweron/poweroff/reboot/shutdown）を実行する。
// POST /api/servers/{id}/actions
func (h *ServerHandler) PerformAction(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	serverID, err := serverIDParam(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	var req serverActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	action, err := h.service.PerformAction(r.Context(), identity, serverID, req.Action)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*hcloud.Action{"action": action})
}

// ResetRootPassword はrootパスワードをリセットする。
// POST /api/servers/{id}/reset-password
//
// レスポンスのroot_passwordは透過のみで、サーバー側には一切残さない。
func (h *ServerHandler) ResetRootPassword(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	serverID, err := serverIDParam(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	result, err := h.service.ResetRootPassword(r.Context(), identity, serverID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetMetrics はサーバーメトリクスを取得する。
// GET /api/servers/{id}/metrics?type=cpu&start=...&end=...&step=...
func (h *ServerHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	serverID, err := serverIDParam(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	query := r.URL.Query()
	opts := hcloud.MetricsOpts{
		Type:  query.Get("type"),
		Start: query.Get("start"),
		End:   query.Get("end"),
		Step:  query.Get("step"),
	}

	metrics, err := h.service.GetMetrics(r.Context(), identity, serverID, opts)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*hcloud.Metrics{"metrics": metrics})
}

// serverIDParam はパスパラメータのサーバーIDを解析する。
func serverIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	serverID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || serverID <= 0 {
		return 0, model.NewValidationError("id", "numeric", "サーバーIDは正の整数で指定してください")
	}
	return serverID, nil
}
