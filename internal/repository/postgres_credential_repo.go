package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/hcadmin/internal/model"
	"github.com/hitoshi/hcadmin/internal/security"
)

// PostgresCredentialRepo はPostgreSQLを使用した資格情報リポジトリ。
// トークンはAES-GCMで暗号化した上で保存する。
type PostgresCredentialRepo struct {
	db     *sql.DB
	cipher *security.TokenCipher
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB, cipher *security.TokenCipher) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db, cipher: cipher}
}

// Upsert はトークンを暗号化して保存する。既存行があれば上書きする。
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, ownerID, token string) error {
	ciphertext, err := r.cipher.Encrypt(token)
	if err != nil {
		return model.NewPersistenceError("credential.encrypt", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO api_credentials (owner_id, token_ciphertext, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (owner_id)
		 DO UPDATE SET token_ciphertext = EXCLUDED.token_ciphertext, updated_at = NOW()`,
		ownerID, ciphertext,
	)
	if err != nil {
		return model.NewPersistenceError("credential.upsert", err)
	}
	return nil
}

// Find は指定テナントの資格情報を復号して返す。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) Find(ctx context.Context, ownerID string) (*model.APICredential, error) {
	cred := &model.APICredential{OwnerID: ownerID}
	var ciphertext string
	err := r.db.QueryRowContext(ctx,
		`SELECT token_ciphertext, created_at, updated_at
		 FROM api_credentials WHERE owner_id = $1`,
		ownerID,
	).Scan(&ciphertext, &cred.CreatedAt, &cred.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewPersistenceError("credential.find", err)
	}

	token, err := r.cipher.Decrypt(ciphertext)
	if err != nil {
		return nil, model.NewPersistenceError("credential.decrypt", err)
	}
	cred.Token = token

	return cred, nil
}

// Delete は指定テナントの資格情報を削除する。存在しなくてもエラーにしない。
func (r *PostgresCredentialRepo) Delete(ctx context.Context, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM api_credentials WHERE owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return model.NewPersistenceError("credential.delete", err)
	}
	return nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
