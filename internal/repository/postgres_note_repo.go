package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/hcadmin/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用したリソースメモリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

// Create はメモを作成する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.ResourceNote) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO resource_notes (id, owner_id, resource_type, resource_id, note, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING created_at`,
		note.ID, note.OwnerID, string(note.ResourceType), note.ResourceID,
		note.Note, note.CreatedBy,
	).Scan(&note.CreatedAt)
	if err != nil {
		return model.NewPersistenceError("note.create", err)
	}
	return nil
}

// ListByResource は指定リソースのメモ一覧を作成日時の降順で返す。
func (r *PostgresNoteRepo) ListByResource(ctx context.Context, ownerID string, resourceType model.ResourceType, resourceID string) ([]*model.ResourceNote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, resource_type, resource_id, note, created_by, created_at
		 FROM resource_notes
		 WHERE owner_id = $1 AND resource_type = $2 AND resource_id = $3
		 ORDER BY created_at DESC`,
		ownerID, string(resourceType), resourceID,
	)
	if err != nil {
		return nil, model.NewPersistenceError("note.list", err)
	}
	defer rows.Close()

	var notes []*model.ResourceNote
	for rows.Next() {
		n := &model.ResourceNote{}
		var rtype string
		if err := rows.Scan(&n.ID, &n.OwnerID, &rtype, &n.ResourceID,
			&n.Note, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, model.NewPersistenceError("note.list.scan", err)
		}
		n.ResourceType = model.ResourceType(rtype)
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewPersistenceError("note.list.rows", err)
	}
	return notes, nil
}

// DeleteByID は指定IDのメモをowner単位のスコープで削除する。
// 他テナントのメモはowner_id条件により対象にならず、ErrNotFoundになる。
func (r *PostgresNoteRepo) DeleteByID(ctx context.Context, ownerID, noteID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM resource_notes WHERE id = $1 AND owner_id = $2`,
		noteID, ownerID,
	)
	if err != nil {
		return model.NewPersistenceError("note.delete", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return model.NewPersistenceError("note.delete.result", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByResource は指定リソースの全メモを削除する。対象0行でもエラーにしない。
func (r *PostgresNoteRepo) DeleteByResource(ctx context.Context, ownerID string, resourceType model.ResourceType, resourceID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM resource_notes
		 WHERE owner_id = $1 AND resource_type = $2 AND resource_id = $3`,
		ownerID, string(resourceType), resourceID,
	)
	if err != nil {
		return model.NewPersistenceError("note.cleanup", err)
	}
	return nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
