// Package auth はセッショントークンの検証を提供する。
// トークンはアイデンティティホストがRS256で署名し、本サービスは
// 公開鍵を取得してローカルで署名と有効期限を検証する。
package auth

import (
	"context"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/hcadmin/internal/model"
)

// sessionClaims はセッショントークンに含まれるクレーム。
type sessionClaims struct {
	ExtensionInstanceID string `json:"ext_instance_id"`
	ExtensionID         string `json:"ext_id"`
	ContextID           string `json:"ctx_id"`
	ProjectID           string `json:"project_id"`
	jwt.RegisteredClaims
}

// Verifier はセッショントークンを検証しIdentityを生成する。
type Verifier struct {
	keys   *PublicKeySource
	logger *slog.Logger
}

// NewVerifier はVerifierを生成する。
func NewVerifier(keys *PublicKeySource, logger *slog.Logger) *Verifier {
	return &Verifier{keys: keys, logger: logger}
}

// Verify はセッショントークンを検証し、検証済みのIdentityを返す。
// 署名不正・期限切れ・必須クレーム欠落・公開鍵取得失敗はすべて
// AuthenticationErrorになり、リクエストはここで中断される。
func (v *Verifier) Verify(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		return nil, model.NewAuthenticationError("セッショントークンがありません", nil)
	}

	key, err := v.keys.Get(ctx)
	if err != nil {
		return nil, model.NewAuthenticationError("検証鍵の取得に失敗しました", err)
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return key, nil
	})
	if err != nil {
		return nil, model.NewAuthenticationError("セッショントークンが無効です", err)
	}
	if !parsed.Valid {
		return nil, model.NewAuthenticationError("セッショントークンが無効です", jwt.ErrSignatureInvalid)
	}

	if claims.ExtensionInstanceID == "" || claims.ExtensionID == "" || claims.Subject == "" {
		return nil, model.NewAuthenticationError("セッショントークンに必須クレームがありません", nil)
	}

	identity := &model.Identity{
		ExtensionInstanceID: claims.ExtensionInstanceID,
		ExtensionID:         claims.ExtensionID,
		UserID:              claims.Subject,
		ContextID:           claims.ContextID,
		ProjectID:           claims.ProjectID,
	}

	v.logger.Debug("セッショントークンを検証しました",
		slog.String("extension_instance_id", identity.ExtensionInstanceID),
		slog.String("user_id", identity.UserID),
	)

	return identity, nil
}
