package credential

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hitoshi/hcadmin/internal/model"
	"github.com/hitoshi/hcadmin/internal/repository"
)

// TokenProber は候補トークンの有効性を上流で確認する。
// hcloud.Factoryが実装する。
type TokenProber interface {
	ProbeToken(ctx context.Context, token string) error
}

// Service はトークン設定画面のユースケースを提供する。
// 保存前に必ず上流への疎通確認を行い、無効なトークンを保存させない。
type Service struct {
	repo     repository.CredentialRepository
	resolver *Resolver
	prober   TokenProber
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(repo repository.CredentialRepository, resolver *Resolver, prober TokenProber, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		prober:   prober,
		logger:   logger,
	}
}

// SetToken はトークンを検証してから暗号化保存する。
// 疎通確認で上流に拒否された場合は保存せずValidationErrorを返す。
func (s *Service) SetToken(ctx context.Context, identity *model.Identity, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.NewValidationError("token", "required", "APIトークンを入力してください")
	}

	if err := s.prober.ProbeToken(ctx, token); err != nil {
		var ue *model.UpstreamError
		if errors.As(err, &ue) && (ue.StatusCode == 401 || ue.StatusCode == 403) {
			return model.NewValidationError("token", "upstream_auth",
				"Hetzner APIがトークンを拒否しました。トークンの値と権限を確認してください")
		}
		// 上流障害・スキーマ不一致はそのまま表面化する
		return err
	}

	if err := s.repo.Upsert(ctx, identity.ExtensionInstanceID, token); err != nil {
		return err
	}

	s.logger.Info("APIトークンを保存しました",
		slog.String("extension_instance_id", identity.ExtensionInstanceID),
		slog.String("token_digest", tokenDigest(token)),
	)
	return nil
}

// GetTokenStatus はトークン設定状態を返す。シークレット本体は含まない。
// 環境変数オーバーライドが有効な場合、保存トークンの有無に関わらずenvironmentになる。
func (s *Service) GetTokenStatus(ctx context.Context, identity *model.Identity) (*model.CredentialStatus, error) {
	if s.resolver.envToken != "" {
		return &model.CredentialStatus{
			HasToken: true,
			Source:   model.CredentialSourceEnvironment,
		}, nil
	}

	cred, err := s.repo.Find(ctx, identity.ExtensionInstanceID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return &model.CredentialStatus{
			HasToken: false,
			Source:   model.CredentialSourceNone,
		}, nil
	}

	configuredAt := cred.UpdatedAt
	return &model.CredentialStatus{
		HasToken:     true,
		Source:       model.CredentialSourceDatabase,
		ConfiguredAt: &configuredAt,
	}, nil
}

// DeleteToken は保存済みトークンを削除する。存在しなくてもエラーにしない。
func (s *Service) DeleteToken(ctx context.Context, identity *model.Identity) error {
	if err := s.repo.Delete(ctx, identity.ExtensionInstanceID); err != nil {
		return err
	}

	s.logger.Info("APIトークンを削除しました",
		slog.String("extension_instance_id", identity.ExtensionInstanceID),
	)
	return nil
}
