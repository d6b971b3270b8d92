package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hcadmin/internal/hcloud"
	"github.com/hitoshi/hcadmin/internal/middleware"
	"github.com/hitoshi/hcadmin/internal/model"
	"github.com/hitoshi/hcadmin/internal/resource"
)

// ResourceServiceInterface はリソース照会ハンドラーが必要とするサービスインターフェース。
type ResourceServiceInterface interface {
	ListResources(ctx context.Context, identity *model.Identity) (*resource.Overview, error)
	ListImages(ctx context.Context, identity *model.Identity) ([]hcloud.Image, error)
	ListLocations(ctx context.Context, identity *model.Identity) ([]hcloud.Location, error)
	ListServerTypes(ctx context.Context, identity *model.Identity) ([]hcloud.ServerTypeCatalog, error)
}

// MetadataServiceInterface はメタデータ管理ハンドラーが必要とするサービスインターフェース。
type MetadataServiceInterface interface {
	Assign(ctx context.Context, identity *model.Identity, input *resource.AssignInput) (*model.ResourceAssignment, error)
	Unassign(ctx context.Context, identity *model.Identity, resourceType model.ResourceType, resourceID string) error
	CreateNote(ctx context.Context, identity *model.Identity, resourceType model.ResourceType, resourceID, text string) (*model.ResourceNote, error)
	ListNotes(ctx context.Context, identity *model.Identity, resourceType model.ResourceType, resourceID string) ([]*model.ResourceNote, error)
	DeleteNote(ctx context.Context, identity *model.Identity, noteID string) error
}

// ResourceHandler はリソース照会とメタデータ管理のHTTPハンドラー。
type ResourceHandler struct {
	resources ResourceServiceInterface
	metadata  MetadataServiceInterface
}

// NewResourceHandler はResourceHandlerを生成する。
func NewResourceHandler(resources ResourceServiceInterface, metadata MetadataServiceInterface) *ResourceHandler {
	return &ResourceHandler{
		resources: resources,
		metadata:  metadata,
	}
}

// assignmentResponse はリソース割り当てのAPIレスポンス。
type assignmentResponse struct {
	ResourceType     string   `json:"resource_type"`
	ResourceID       string   `json:"resource_id"`
	ResourceName     string   `json:"resource_name"`
	TenantProjectID  string   `json:"tenant_project_id"`
	TenantCustomerID string   `json:"tenant_customer_id"`
	Tags             []string `json:"tags"`
	UpdatedAt        string   `json:"updated_at"`
}

// noteResponse はリソースメモのAPIレスポンス。
type noteResponse struct {
	ID           string `json:"id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Note         string `json:"note"`
	CreatedBy    string `json:"created_by"`
	CreatedAt    string `json:"created_at"`
}

// createNoteRequest はメモ作成リクエストのボディ。
type createNoteRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Note         string `json:"note"`
}

// unassignRequest は割り当て解除リクエストのボディ。
type unassignRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}

// ListResources はリソース概要（一覧・割り当て・コスト見積もり）を取得する。
// GET /api/resources
func (h *ResourceHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	overview, err := h.resources.ListResources(r.Context(), identity)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

// ListImages はシステムイメージカタログを取得する。
// GET /api/images
func (h *ResourceHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	images, err := h.resources.ListImages(r.Context(), identity)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if images == nil {
		images = []hcloud.Image{}
	}

	writeJSON(w, http.StatusOK, map[string][]hcloud.Image{"images": images})
}

// ListLocations はロケーションカタログを取得する。
// GET /api/locations
func (h *ResourceHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	locations, err := h.resources.ListLocations(r.Context(), identity)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if locations == nil {
		locations = []hcloud.Location{}
	}

	writeJSON(w, http.StatusOK, map[string][]hcloud.Location{"locations": locations})
}

// ListServerTypes はサーバータイプカタログを取得する。
// GET /api/server-types
func (h *ResourceHandler) ListServerTypes(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	serverTypes, err := h.resources.ListServerTypes(r.Context(), identity)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if serverTypes == nil {
		serverTypes = []hcloud.ServerTypeCatalog{}
	}

	writeJSON(w, http.StatusOK, map[string][]hcloud.ServerTypeCatalog{"server_types": serverTypes})
}

// Assign はリソースへの割り当てを作成または上書きする。
// POST /api/assignments
func (h *ResourceHandler) Assign(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	var input resource.AssignInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeInvalidBodyError(w)
		return
	}

	assignment, err := h.metadata.Assign(r.Context(), identity, &input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAssignmentResponse(assignment))
}

// Unassign はリソースの割り当てを解除する。
// DELETE /api/assignments
func (h *ResourceHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	var req unassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	if err := h.metadata.Unassign(r.Context(), identity, model.ResourceType(req.ResourceType), req.ResourceID); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateNote はリソースにメモを追加する。
// POST /api/notes
func (h *ResourceHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	var req createNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	note, err := h.metadata.CreateNote(r.Context(), identity,
		model.ResourceType(req.ResourceType), req.ResourceID, req.Note)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toNoteResponse(note))
}

// ListNotes は指定リソースのメモ一覧を取得する。
// GET /api/notes?resource_type=server&resource_id=42
func (h *ResourceHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	query := r.URL.Query()
	notes, err := h.metadata.ListNotes(r.Context(), identity,
		model.ResourceType(query.Get("resource_type")), query.Get("resource_id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	resp := make([]noteResponse, 0, len(notes))
	for _, note := range notes {
		resp = append(resp, toNoteResponse(note))
	}

	writeJSON(w, http.StatusOK, map[string][]noteResponse{"notes": resp})
}

// DeleteNote は指定IDのメモを削除する。
// DELETE /api/notes/{id}
func (h *ResourceHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAuthenticationError("認証が必要です", err))
		return
	}

	if err := h.metadata.DeleteNote(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- レスポンス変換 ---

// toAssignmentResponse はmodel.ResourceAssignmentからAPIレスポンスに変換する。
func toAssignmentResponse(a *model.ResourceAssignment) assignmentResponse {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return assignmentResponse{
		ResourceType:     string(a.ResourceType),
		ResourceID:       a.ResourceID,
		ResourceName:     a.ResourceName,
		TenantProjectID:  a.TenantProjectID,
		TenantCustomerID: a.TenantCustomerID,
		Tags:             tags,
		UpdatedAt:        a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// toNoteResponse はmodel.ResourceNoteからAPIレスポンスに変換する。
func toNoteResponse(n *model.ResourceNote) noteResponse {
	return noteResponse{
		ID:           n.ID,
		ResourceType: string(n.ResourceType),
		ResourceID:   n.ResourceID,
		Note:         n.Note,
		CreatedBy:    n.CreatedBy,
		CreatedAt:    n.CreatedAt.UTC().Format(time.RFC3339),
	}
}
