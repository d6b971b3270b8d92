// Package credential はHetzner APIトークンの解決と管理を提供する。
// 解決順序は環境変数オーバーライド → テナントごとの保存トークン。
// トークン本体は決してログに出さない。
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/hcadmin/internal/model"
	"github.com/hitoshi/hcadmin/internal/repository"
)

// Resolver はリクエストごとに使用するAPIトークンを決定する。
type Resolver struct {
	repo     repository.CredentialRepository
	envToken string
	logger   *slog.Logger
}

// NewResolver はResolverを生成する。
// envTokenはHETZNER_API_TOKEN環境変数の値（未設定なら空文字列）。
func NewResolver(repo repository.CredentialRepository, envToken string, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:     repo,
		envToken: strings.TrimSpace(envToken),
		logger:   logger,
	}
}

// Resolve は指定テナントで使用するトークンとその出所を返す。
// 環境変数オーバーライドが設定されている場合は保存トークンより常に優先する。
// どちらも存在しない場合はConfigurationErrorを返す。
func (r *Resolver) Resolve(ctx context.Context, identity *model.Identity) (string, model.CredentialSource, error) {
	if r.envToken != "" {
		r.logger.Debug("環境変数のAPIトークンを使用します",
			slog.String("extension_instance_id", identity.ExtensionInstanceID),
			slog.String("token_digest", tokenDigest(r.envToken)),
		)
		return r.envToken, model.CredentialSourceEnvironment, nil
	}

	cred, err := r.repo.Find(ctx, identity.ExtensionInstanceID)
	if err != nil {
		return "", model.CredentialSourceNone, err
	}
	if cred == nil {
		return "", model.CredentialSourceNone, model.NewTokenNotConfiguredError()
	}

	r.logger.Debug("保存済みのAPIトークンを使用します",
		slog.String("extension_instance_id", identity.ExtensionInstanceID),
		slog.String("token_digest", tokenDigest(cred.Token)),
	)
	return cred.Token, model.CredentialSourceDatabase, nil
}

// tokenDigest はログ用のトークン要約を返す。先頭4文字と長さのみで、
// トークン本体は復元できない。
func tokenDigest(token string) string {
	prefix := token
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return fmt.Sprintf("%s...(len=%d)", prefix, len(token))
}
