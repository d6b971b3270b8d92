package resource

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/hcadmin/internal/model"
	"github.com/hitoshi/hcadmin/internal/repository"
	"github.com/hitoshi/hcadmin/internal/security"
)

// maxNoteLength はメモ本文の上限文字数（バイト）。
const maxNoteLength = 4096

// AssignInput はリソース割り当ての入力を表す。
type AssignInput struct {
	ResourceType     model.ResourceType `json:"resource_type"`
	ResourceID       string             `json:"resource_id"`
	ResourceName     string             `json:"resource_name"`
	TenantProjectID  string             `json:"tenant_project_id"`
	TenantCustomerID string             `json:"tenant_customer_id"`
	Tags             []string           `json:"tags"`
}

// MetadataService はリソース割り当てとメモのサービス層。
// 上流には一切触れず、ローカル永続化のみを扱う。
type MetadataService struct {
	assignments repository.AssignmentRepository
	notes       repository.NoteRepository
	sanitizer   *security.NoteSanitizer
	logger      *slog.Logger
}

// NewMetadataService はMetadataServiceを生成する。
func NewMetadataService(
	assignments repository.AssignmentRepository,
	notes repository.NoteRepository,
	sanitizer *security.NoteSanitizer,
	logger *slog.Logger,
) *MetadataService {
	return &MetadataService{
		assignments: assignments,
		notes:       notes,
		sanitizer:   sanitizer,
		logger:      logger,
	}
}

// Assign はリソースへの割り当てを作成または上書きする。
func (s *MetadataService) Assign(ctx context.Context, identity *model.Identity, input *AssignInput) (*model.ResourceAssignment, error) {
	if err := validateResourceKey(input.ResourceType, input.ResourceID); err != nil {
		return nil, err
	}

	assignment := &model.ResourceAssignment{
		OwnerID:          identity.ExtensionInstanceID,
		ResourceType:     input.ResourceType,
		ResourceID:       input.ResourceID,
		ResourceName:     input.ResourceName,
		TenantProjectID:  input.TenantProjectID,
		TenantCustomerID: input.TenantCustomerID,
		Tags:             input.Tags,
	}
	if assignment.Tags == nil {
		assignment.Tags = []string{}
	}

	if err := s.assignments.Upsert(ctx, assignment); err != nil {
		return nil, err
	}

	s.logger.Info("リソースを割り当てました",
		slog.String("extension_instance_id", identity.ExtensionInstanceID),
		slog.String("resource_type", string(input.ResourceType)),
		slog.String("resource_id", input.ResourceID),
	)
	return assignment, nil
}

// Unassign はリソースの割り当てを解除する。
// 割り当てが存在しない場合はValidationErrorを返す。
func (s *MetadataService) Unassign(ctx context.Context, identity *model.Identity, resourceType model.ResourceType, resourceID string) error {
	if err := validateResourceKey(resourceType, resourceID); err != nil {
		return err
	}

	err := s.assignments.Delete(ctx, identity.ExtensionInstanceID, resourceType, resourceID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewValidationError("resource_id", "exists", "指定されたリソースに割り当てはありません")
	}
	return err
}

// CreateNote はリソースにメモを追加する。
// 本文はHTMLを除去した上で保存し、空になった場合は検証エラーにする。
func (s *MetadataService) CreateNote(ctx context.Context, identity *model.Identity, resourceType model.ResourceType, resourceID, text string) (*model.ResourceNote, error) {
	if err := validateResourceKey(resourceType, resourceID); err != nil {
		return nil, err
	}

	sanitized := s.sanitizer.Sanitize(text)
	if sanitized == "" {
		return nil, model.NewValidationError("note", "required", "メモ本文を入力してください")
	}
	if len(sanitized) > maxNoteLength {
		return nil, model.NewValidationError("note", "max", "メモ本文が長すぎます")
	}

	note := &model.ResourceNote{
		ID:           uuid.New().String(),
		OwnerID:      identity.ExtensionInstanceID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Note:         sanitized,
		CreatedBy:    identity.UserID,
	}
	if err := s.notes.Create(ctx, note); err != nil {
		return nil, err
	}

	s.logger.Info("メモを作成しました",
		slog.String("extension_instance_id", identity.ExtensionInstanceID),
		slog.String("note_id", note.ID),
		slog.String("resource_type", string(resourceType)),
		slog.String("resource_id", resourceID),
	)
	return note, nil
}

// ListNotes は指定リソースのメモ一覧を新しい順で返す。
func (s *MetadataService) ListNotes(ctx context.Context, identity *model.Identity, resourceType model.ResourceType, resourceID string) ([]*model.ResourceNote, error) {
	if err := validateResourceKey(resourceType, resourceID); err != nil {
		return nil, err
	}
	return s.notes.ListByResource(ctx, identity.ExtensionInstanceID, resourceType, resourceID)
}

// DeleteNote は指定IDのメモを削除する。他テナントのメモは見えないため、
// 存在しないIDと同じ扱いでValidationErrorになる。
func (s *MetadataService) DeleteNote(ctx context.Context, identity *model.Identity, noteID string) error {
	if noteID == "" {
		return model.NewValidationError("id", "required", "メモIDを指定してください")
	}
	// uuid列へのキャストエラーを永続化エラーとして扱わないよう、形式はここで弾く
	if _, err := uuid.Parse(noteID); err != nil {
		return model.NewValidationError("id", "uuid", "メモIDの形式が不正です")
	}

	err := s.notes.DeleteByID(ctx, identity.ExtensionInstanceID, noteID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewValidationError("id", "exists", "指定されたメモは存在しません")
	}
	return err
}

// validateResourceKey はリソース種別とIDの組を検証する。
func validateResourceKey(resourceType model.ResourceType, resourceID string) error {
	if !model.ValidResourceType(resourceType) {
		return model.NewValidationError("resource_type", "oneof", "未知のリソース種別です")
	}
	if resourceID == "" {
		return model.NewValidationError("resource_id", "required", "リソースIDを指定してください")
	}
	return nil
}
