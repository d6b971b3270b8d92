// Package repository はデータ永続化のインターフェースを定義する。
// 全クエリはownerId（extensionInstanceId）で必ずスコープされ、
// テナント間の読み書きは構造的に不可能にする。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/hcadmin/internal/model"
)

// ErrNotFound は指定された行が存在しないことを表す。
// 削除系操作で対象0行だった場合に返す。
var ErrNotFound = errors.New("レコードが見つかりません")

// CredentialRepository はテナントごとのAPIトークンの永続化インターフェース。
// トークンは保存時に暗号化され、1テナントにつき最大1行（UPSERT）。
type CredentialRepository interface {
	// Upsert はトークンを暗号化して保存する。既存行があれば上書きする。
	Upsert(ctx context.Context, ownerID, token string) error

	// Find は指定テナントの資格情報を復号して返す。存在しない場合はnilを返す。
	Find(ctx context.Context, ownerID string) (*model.APICredential, error)

	// Delete は指定テナントの資格情報を削除する。存在しなくてもエラーにしない。
	Delete(ctx context.Context, ownerID string) error
}

// AssignmentRepository はリソース割り当ての永続化インターフェース。
// (ownerID, resourceType, resourceID)で一意。
type AssignmentRepository interface {
	// Upsert は割り当てを作成または上書きする。タイムスタンプは保存後の値が反映される。
	Upsert(ctx context.Context, a *model.ResourceAssignment) error

	// Find は指定リソースの割り当てを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, ownerID string, resourceType model.ResourceType, resourceID string) (*model.ResourceAssignment, error)

	// ListByOwner はテナントの全割り当てを返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.ResourceAssignment, error)

	// Delete は割り当てを削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, ownerID string, resourceType model.ResourceType, resourceID string) error

	// DeleteByResource は割り当てを削除する。対象0行でもエラーにしない。
	// リソース削除時のクリーンアップ用。
	DeleteByResource(ctx context.Context, ownerID string, resourceType model.ResourceType, resourceID string) error
}

// NoteRepository はリソースメモの永続化インターフェース。
type NoteRepository interface {
	// Create はメモを作成する。
	Create(ctx context.Context, note *model.ResourceNote) error

	// ListByResource は指定リソースのメモ一覧を作成日時の降順で返す。
	ListByResource(ctx context.Context, ownerID string, resourceType model.ResourceType, resourceID string) ([]*model.ResourceNote, error)

	// DeleteByID は指定IDのメモをowner単位のスコープで削除する。
	// 対象が存在しない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, ownerID, noteID string) error

	// DeleteByResource は指定リソースの全メモを削除する。対象0行でもエラーにしない。
	// リソース削除時のクリーンアップ用。
	DeleteByResource(ctx context.Context, ownerID string, resourceType model.ResourceType, resourceID string) error
}
