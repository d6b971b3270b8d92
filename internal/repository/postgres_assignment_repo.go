package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/hitoshi/hcadmin/internal/model"
)

// PostgresAssignmentRepo はPostgreSQLを使用したリソース割り当てリポジトリ。
type PostgresAssignmentRepo struct {
	db *sql.DB
}

// NewPostgresAssignmentRepo はPostgresAssignmentRepoを生成する。
func NewPostgresAssignmentRepo(db *sql.DB) *PostgresAssignmentRepo {
	return &PostgresAssignmentRepo{db: db}
}

// Upsert は割り当てを作成または上書きする。
// 自然キーは(owner_id, resource_type, resource_id)。
func (r *PostgresAssignmentRepo) Upsert(ctx context.Context, a *model.ResourceAssignment) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO resource_assignments
		 (owner_id, resource_type, resource_id, resource_name, tenant_project_id, tenant_customer_id, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 ON CONFLICT (owner_id, resource_type, resource_id)
		 DO UPDATE SET
		     resource_name = EXCLUDED.resource_name,
		     tenant_project_id = EXCLUDED.tenant_project_id,
		     tenant_customer_id = EXCLUDED.tenant_customer_id,
		     tags = EXCLUDED.tags,
		     updated_at = NOW()
		 RETURNING created_at, updated_at`,
		a.OwnerID, string(a.ResourceType), a.ResourceID,
		a.ResourceName, a.TenantProjectID, a.TenantCustomerID, pq.Array(a.Tags),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.NewPersistenceError("assignment.upsert", err)
	}
	return nil
}

// Find は指定リソースの割り当てを取得する。見つからない場合はnilを返す。
func (r *PostgresAssignmentRepo) Find(ctx context.Context, ownerID string, resourceType model.ResourceType, resourceID string) (*model.ResourceAssignment, error) {
	a := &model.ResourceAssignment{}
	var rtype string
	err := r.db.QueryRowContext(ctx,
		`SELECT owner_id, resource_type, resource_id, resource_name, tenant_project_id, tenant_customer_id, tags, created_at, updated_at
		 FROM resource_assignments
		 WHERE owner_id = $1 AND resource_type = $2 AND resource_id = $3`,
		ownerID, string(resourceType), resourceID,
	).Scan(&a.OwnerID, &rtype, &a.ResourceID, &a.ResourceName,
		&a.TenantProjectID, &a.TenantCustomerID, pq.Array(&a.Tags),
		&a.CreatedAt, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewPersistenceError("assignment.find", err)
	}
	a.ResourceType = model.ResourceType(rtype)

	return a, nil
}

// ListByOwner はテナントの全割り当てを返す。
func (r *PostgresAssignmentRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.ResourceAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT owner_id, resource_type, resource_id, resource_name, tenant_project_id, tenant_customer_id, tags, created_at, updated_at
		 FROM resource_assignments
		 WHERE owner_id = $1
		 ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, model.NewPersistenceError("assignment.list", err)
	}
	defer rows.Close()

	var assignments []*model.ResourceAssignment
	for rows.Next() {
		a := &model.ResourceAssignment{}
		var rtype string
		if err := rows.Scan(&a.OwnerID, &rtype, &a.ResourceID, &a.ResourceName,
			&a.TenantProjectID, &a.TenantCustomerID, pq.Array(&a.Tags),
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, model.NewPersistenceError("assignment.list.scan", err)
		}
		a.ResourceType = model.ResourceType(rtype)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewPersistenceError("assignment.list.rows", err)
	}
	return assignments, nil
}

// Delete は割り当てを削除する。対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresAssignmentRepo) Delete(ctx context.Context, ownerID string, resourceType model.ResourceType, resourceID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM resource_assignments
		 WHERE owner_id = $1 AND resource_type = $2 AND resource_id = $3`,
		ownerID, string(resourceType), resourceID,
	)
	if err != nil {
		return model.NewPersistenceError("assignment.delete", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return model.NewPersistenceError("assignment.delete.result", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByResource は割り当てを削除する。対象0行でもエラーにしない。
func (r *PostgresAssignmentRepo) DeleteByResource(ctx context.Context, ownerID string, resourceType model.ResourceType, resourceID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM resource_assignments
		 WHERE owner_id = $1 AND resource_type = $2 AND resource_id = $3`,
		ownerID, string(resourceType), resourceID,
	)
	if err != nil {
		return model.NewPersistenceError("assignment.cleanup", err)
	}
	return nil
}

// compile-time interface check
var _ AssignmentRepository = (*PostgresAssignmentRepo)(nil)
