// Package server はサーバー操作のドメインロジックを提供する。
// すべての操作は検証済みIdentityを明示的な引数として受け取り、
// 資格情報解決 → 上流呼び出し → ローカル永続化の順で進む。
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/hcadmin/internal/credential"
	"github.com/hitoshi/hcadmin/internal/hcloud"
	"github.com/hitoshi/hcadmin/internal/model"
	"github.com/hitoshi/hcadmin/internal/repository"
)

// defaultMetricsWindow はメトリクス取得のデフォルト期間。
const defaultMetricsWindow = 24 * time.Hour

// CloudClient は1トークン分のHetzner API操作のインターフェース。
// テスタビリティのためhcloud.Clientを抽象化する。
type CloudClient interface {
	ListServers(ctx context.Context) ([]hcloud.Server, *hcloud.Meta, error)
	GetServer(ctx context.Context, serverID int64) (*hcloud.Server, error)
	CreateServer(ctx context.Context, opts *hcloud.CreateServerOpts) (*hcloud.CreateServerResult, error)
	DeleteServer(ctx context.Context, serverID int64) (*hcloud.Action, error)
	ServerAction(ctx context.Context, serverID int64, command string) (*hcloud.Action, error)
	ResetRootPassword(ctx context.Context, serverID int64) (*hcloud.ResetPasswordResult, error)
	GetServerMetrics(ctx context.Context, serverID int64, opts hcloud.MetricsOpts) (*hcloud.Metrics, error)
}

// ClientFactory はトークンからCloudClientを生成する。
type ClientFactory func(token string) CloudClient

// Detail はサーバー詳細とローカルメタデータの組を表す。
type Detail struct {
	Server     *hcloud.Server
	Assignment *model.ResourceAssignment
	Notes      []*model.ResourceNote
}

// Service はサーバー操作のサービス層。
type Service struct {
	clients     ClientFactory
	resolver    *credential.Resolver
	assignments repository.AssignmentRepository
	notes       repository.NoteRepository
	logger      *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	clients ClientFactory,
	resolver *credential.Resolver,
	assignments repository.AssignmentRepository,
	notes repository.NoteRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		clients:     clients,
		resolver:    resolver,
		assignments: assignments,
		notes:       notes,
		logger:      logger,
	}
}

// client は資格情報を解決し、テナント用のCloudClientを返す。
func (s *Service) client(ctx context.Context, identity *model.Identity) (CloudClient, error) {
	token, _, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.clients(token), nil
}

// List は全サーバーの一覧を取得する。
func (s *Service) List(ctx context.Context, identity *model.Identity) ([]hcloud.Server, error) {
	client, err := s.client(ctx, identity)
	if err != nil {
		return nil, err
	}
	servers, _, err := client.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	return servers, nil
}

// Get はサーバー詳細をローカルの割り当て・メモとあわせて返す。
func (s *Service) Get(ctx context.Context, identity *model.Identity, serverID int64) (*Detail, error) {
	client, err := s.client(ctx, identity)
	if err != nil {
		return nil, err
	}

	server, err := client.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}

	resourceID := strconv.FormatInt(serverID, 10)
	assignment, err := s.assignments.Find(ctx, identity.ExtensionInstanceID, model.ResourceTypeServer, resourceID)
	if err != nil {
		return nil, err
	}
	notes, err := s.notes.ListByResource(ctx, identity.ExtensionInstanceID, model.ResourceTypeServer, resourceID)
	if err != nil {
		return nil, err
	}

	return &Detail{Server: server, Assignment: assignment, Notes: notes}, nil
}

// Create は入力を検証・正規化した上でサーバーを作成する。
// 結果のroot_passwordは呼び出し元へそのまま返し、ログには残さない。
func (s *Service) Create(ctx context.Context, identity *model.Identity, opts *hcloud.CreateServerOpts) (*hcloud.CreateServerResult, error) {
	if err := validateCreateOpts(opts); err != nil {
		return nil, err
	}

	client, err := s.client(ctx, identity)
	if err != nil {
		return nil, err
	}

	result, err := client.CreateServer(ctx, opts)
	if err != nil {
		return nil, err
	}

	s.logger.Info("サーバーを作成しました",
		slog.String("extension_instance_id", identity.ExtensionInstanceID),
		slog.Int64("server_id", result.Server.ID),
		slog.String("name", result.Server.Name),
	)
	return result, nil
}

// Delete はサーバーを削除し、ローカルの割り当てとメモを後始末する。
// 上流の削除成功が正であり、後始末の失敗はログに記録するだけで
// 呼び出し元へは返さない。上流の削除が失敗した場合は後始末を一切行わない。
func (s *Service) Delete(ctx context.Context, identity *model.Identity, serverID int64) (*hcloud.Action, error) {
	client, err := s.client(ctx, identity)
	if err != nil {
		return nil, err
	}

	action, err := client.DeleteServer(ctx, serverID)
	if err != nil {
		return nil, err
	}

	resourceID := strconv.FormatInt(serverID, 10)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.assignments.DeleteByResource(ctx, identity.ExtensionInstanceID, model.ResourceTypeServer, resourceID); err != nil {
			s.logger.Error("割り当ての後始末に失敗しました",
				slog.String("extension_instance_id", identity.ExtensionInstanceID),
				slog.String("resource_id", resourceID),
				slog.String("error", err.Error()),
			)
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.notes.DeleteByResource(ctx, identity.ExtensionInstanceID, model.ResourceTypeServer, resourceID); err != nil {
			s.logger.Error("メモの後始末に失敗しました",
				slog.String("extension_instance_id", identity.ExtensionInstanceID),
				slog.String("resource_id", resourceID),
				slog.String("error", err.Error()),
			)
		}
	}()
	wg.Wait()

	s.logger.Info("サーバーを削除しました",
		slog.String("extension_instance_id", identity.ExtensionInstanceID),
		slog.Int64("server_id", serverID),
	)
	return action, nil
}

// PerformAction は電源系アクションを実行する。
// 実行前に現在のステータスを取得し、許可されない遷移はクライアント側で拒否する。
// 取得後のステータス変化（競合）までは防げず、その場合は上流が拒否する。
func (s *Service) PerformAction(ctx context.Context, identity *model.Identity, serverID int64, action string) (*hcloud.Action, error) {
	if !validAction(action) {
		return nil, model.NewValidationError("action", "oneof",
			"actionはpoweron/poweroff/reboot/shutdownのいずれかを指定してください")
	}

	client, err := s.client(ctx, identity)
	if err != nil {
		return nil, err
	}

	server, err := client.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}

	if err := checkActionAllowed(action, server.Status); err != nil {
		return nil, err
	}

	result, err := client.ServerAction(ctx, serverID, action)
	if err != nil {
		return nil, err
	}

	s.logger.Info("サーバーアクションを実行しました",
		slog.String("extension_instance_id", identity.ExtensionInstanceID),
		slog.Int64("server_id", serverID),
		slog.String("action", action),
	)
	return result, nil
}

// ResetRootPassword はrootパスワードをリセットする。
// 稼働中（running）のサーバーに対してのみ許可する。
func (s *Service) ResetRootPassword(ctx context.Context, identity *model.Identity, serverID int64) (*hcloud.ResetPasswordResult, error) {
	client, err := s.client(ctx, identity)
	if err != nil {
		return nil, err
	}

	server, err := client.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server.Status != "running" {
		return nil, model.NewValidationError("server", "status",
			fmt.Sprintf("rootパスワードのリセットは稼働中のサーバーに対してのみ実行できます（現在: %s）", server.Status))
	}

	return client.ResetRootPassword(ctx, serverID)
}

// GetMetrics はサーバーメトリクスを取得する。
// 期間が未指定の場合は直近24時間、typeが未指定の場合はcpuを使う。
func (s *Service) GetMetrics(ctx context.Context, identity *model.Identity, serverID int64, opts hcloud.MetricsOpts) (*hcloud.Metrics, error) {
	if opts.Type == "" {
		opts.Type = "cpu"
	}
	if opts.Start == "" || opts.End == "" {
		end := time.Now().UTC()
		opts.End = end.Format(time.RFC3339)
		opts.Start = end.Add(-defaultMetricsWindow).Format(time.RFC3339)
	}

	client, err := s.client(ctx, identity)
	if err != nil {
		return nil, err
	}
	return client.GetServerMetrics(ctx, serverID, opts)
}

// validAction は電源系アクション名かどうかを返す。
func validAction(action string) bool {
	switch action {
	case hcloud.ActionPowerOn, hcloud.ActionPowerOff, hcloud.ActionReboot, hcloud.ActionShutdown:
		return true
	}
	return false
}

// checkActionAllowed は現在のステータスからのアクション遷移を検査する。
// poweron/poweroffはrunning/offのどちらからでも許可（冪等な発行を許す）。
// reboot/shutdownは稼働中のみ。
func checkActionAllowed(action, status string) error {
	allowed := false
	switch action {
	case hcloud.ActionPowerOn, hcloud.ActionPowerOff:
		allowed = status == "running" || status == "off"
	case hcloud.ActionReboot, hcloud.ActionShutdown:
		allowed = status == "running"
	}
	if !allowed {
		return model.NewValidationError("action", "state",
			fmt.Sprintf("現在のステータス（%s）では%sを実行できません", status, action))
	}
	return nil
}
