package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/hcadmin/internal/model"
)

// 各リポジトリがインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
	var _ AssignmentRepository = (*PostgresAssignmentRepo)(nil)
	var _ NoteRepository = (*PostgresNoteRepo)(nil)
}

func TestNewPostgresCredentialRepo_Initializes(t *testing.T) {
	repo := NewPostgresCredentialRepo(nil, nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestNewPostgresAssignmentRepo_Initializes(t *testing.T) {
	repo := NewPostgresAssignmentRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestNewPostgresNoteRepo_Initializes(t *testing.T) {
	repo := NewPostgresNoteRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// ResourceAssignmentモデルのフィールドが正しく構築されることを検証
func TestResourceAssignmentModel_Fields(t *testing.T) {
	now := time.Now()
	a := &model.ResourceAssignment{
		OwnerID:          "inst-1",
		ResourceType:     model.ResourceTypeServer,
		ResourceID:       "42",
		ResourceName:     "web-1",
		TenantProjectID:  "proj-7",
		TenantCustomerID: "cust-3",
		Tags:             []string{"prod", "web"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if a.OwnerID != "inst-1" {
		t.Errorf("a.OwnerID = %q, want %q", a.OwnerID, "inst-1")
	}
	if a.ResourceType != model.ResourceTypeServer {
		t.Errorf("a.ResourceType = %q, want %q", a.ResourceType, model.ResourceTypeServer)
	}
	if len(a.Tags) != 2 {
		t.Errorf("len(a.Tags) = %d, want 2", len(a.Tags))
	}
}

// ResourceNoteモデルのフィールドが正しく構築されることを検証
func TestResourceNoteModel_Fields(t *testing.T) {
	n := &model.ResourceNote{
		ID:           "3e9a6f1c-0000-0000-0000-000000000001",
		OwnerID:      "inst-1",
		ResourceType: model.ResourceTypeVolume,
		ResourceID:   "100",
		Note:         "バックアップ対象",
		CreatedBy:    "user-9",
	}

	if n.ResourceType != model.ResourceTypeVolume {
		t.Errorf("n.ResourceType = %q, want %q", n.ResourceType, model.ResourceTypeVolume)
	}
	if n.Note != "バックアップ対象" {
		t.Errorf("n.Note = %q", n.Note)
	}
}

func TestErrNotFound_IsDistinct(t *testing.T) {
	if ErrNotFound == nil {
		t.Fatal("ErrNotFound is nil")
	}
	if ErrNotFound.Error() == "" {
		t.Error("ErrNotFound のメッセージが空")
	}
}
