// Package resource はリソース横断の照会とローカルメタデータ管理を提供する。
package resource

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/hitoshi/hcadmin/internal/cost"
	"github.com/hitoshi/hcadmin/internal/credential"
	"github.com/hitoshi/hcadmin/internal/hcloud"
	"github.com/hitoshi/hcadmin/internal/model"
	"github.com/hitoshi/hcadmin/internal/repository"
)

// CloudClient はリソース照会に必要な上流操作のインターフェース。
type CloudClient interface {
	ListServers(ctx context.Context) ([]hcloud.Server, *hcloud.Meta, error)
	ListVolumes(ctx context.Context) ([]hcloud.Volume, *hcloud.Meta, error)
	ListFloatingIPs(ctx context.Context) ([]hcloud.FloatingIP, *hcloud.Meta, error)
	GetPricing(ctx context.Context) (*hcloud.Pricing, error)
	ListImages(ctx context.Context, imageType string) ([]hcloud.Image, error)
	ListLocations(ctx context.Context) ([]hcloud.Location, error)
	ListServerTypes(ctx context.Context) ([]hcloud.ServerTypeCatalog, error)
}

// ClientFactory はトークンからCloudClientを生成する。
type ClientFactory func(token string) CloudClient

// AnnotatedServer はサーバーとローカル割り当ての組を表す。
type AnnotatedServer struct {
	Server     hcloud.Server             `json:"server"`
	Assignment *model.ResourceAssignment `json:"assignment,omitempty"`
}

// AnnotatedVolume はボリュームとローカル割り当ての組を表す。
type AnnotatedVolume struct {
	Volume     hcloud.Volume             `json:"volume"`
	Assignment *model.ResourceAssignment `json:"assignment,omitempty"`
}

// AnnotatedFloatingIP はフローティングIPとローカル割り当ての組を表す。
type AnnotatedFloatingIP struct {
	FloatingIP hcloud.FloatingIP         `json:"floating_ip"`
	Assignment *model.ResourceAssignment `json:"assignment,omitempty"`
}

// Overview はリソース一覧・コスト見積もり・料金スナップショットをまとめた結果。
type Overview struct {
	Servers              []AnnotatedServer     `json:"servers"`
	Volumes              []AnnotatedVolume     `json:"volumes"`
	FloatingIPs          []AnnotatedFloatingIP `json:"floating_ips"`
	EstimatedMonthlyCost cost.Estimate         `json:"estimated_monthly_cost"`
	Pricing              *hcloud.Pricing       `json:"pricing"`
}

// Service はリソース横断照会とメタデータ管理のサービス層。
type Service struct {
	clients     ClientFactory
	resolver    *credential.Resolver
	assignments repository.AssignmentRepository
	logger      *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	clients ClientFactory,
	resolver *credential.Resolver,
	assignments repository.AssignmentRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		clients:     clients,
		resolver:    resolver,
		assignments: assignments,
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

// ListResources は全リソースの概要を返す。
// 4つの上流一覧呼び出しを並行して発行し、1つでも失敗したら全体を失敗させる
// （部分的な結果は返さない）。結果に割り当てを結合し、コスト見積もりを計算する。
func (s *Service) ListResources(ctx context.Context, identity *model.Identity) (*Overview, error) {
	client, err := s.client(ctx, identity)
	if err != nil {
		return nil, err
	}

	var (
		wg          sync.WaitGroup
		servers     []hcloud.Server
		volumes     []hcloud.Volume
		floatingIPs []hcloud.FloatingIP
		pricing     *hcloud.Pricing

		serversErr     error
		volumesErr     error
		floatingIPsErr error
		pricingErr     error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		servers, _, serversErr = client.ListServers(ctx)
	}()
	go func() {
		defer wg.Done()
		volumes, _, volumesErr = client.ListVolumes(ctx)
	}()
	go func() {
		defer wg.Done()
		floatingIPs, _, floatingIPsErr = client.ListFloatingIPs(ctx)
	}()
	go func() {
		defer wg.Done()
		pricing, pricingErr = client.GetPricing(ctx)
	}()
	wg.Wait()

	for _, err := range []error{serversErr, volumesErr, floatingIPsErr, pricingErr} {
		if err != nil {
			return nil, err
		}
	}

	assignments, err := s.assignments.ListByOwner(ctx, identity.ExtensionInstanceID)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*model.ResourceAssignment, len(assignments))
	for _, a := range assignments {
		byKey[string(a.ResourceType)+"/"+a.ResourceID] = a
	}

	overview := &Overview{
		Servers:     make([]AnnotatedServer, 0, len(servers)),
		Volumes:     make([]AnnotatedVolume, 0, len(volumes)),
		FloatingIPs: make([]AnnotatedFloatingIP, 0, len(floatingIPs)),
		Pricing:     pricing,
	}
	for _, server := range servers {
		overview.Servers = append(overview.Servers, AnnotatedServer{
			Server:     server,
			Assignment: byKey[string(model.ResourceTypeServer)+"/"+strconv.FormatInt(server.ID, 10)],
		})
	}
	for _, volume := range volumes {
		overview.Volumes = append(overview.Volumes, AnnotatedVolume{
			Volume:     volume,
			Assignment: byKey[string(model.ResourceTypeVolume)+"/"+strconv.FormatInt(volume.ID, 10)],
		})
	}
	for _, fip := range floatingIPs {
		overview.FloatingIPs = append(overview.FloatingIPs, AnnotatedFloatingIP{
			FloatingIP: fip,
			Assignment: byKey[string(model.ResourceTypeFloatingIP)+"/"+strconv.FormatInt(fip.ID, 10)],
		})
	}

	overview.EstimatedMonthlyCost = cost.Calculate(servers, volumes, floatingIPs, pricing)
	return overview, nil
}

// ListImages はサーバー作成フォーム用のシステムイメージカタログを返す。
func (s *Service) ListImages(ctx context.Context, identity *model.Identity) ([]hcloud.Image, error) {
	client, err := s.client(ctx, identity)
	if err != nil {
		return nil, err
	}
	return client.ListImages(ctx, "system")
}

// ListLocations はロケーションカタログを返す。
func (s *Service) ListLocations(ctx context.Context, identity *model.Identity) ([]hcloud.Location, error) {
	client, err := s.client(ctx, identity)
	if err != nil {
		return nil, err
	}
	return client.ListLocations(ctx)
}

// ListServerTypes はサーバータイプカタログを返す。
func (s *Service) ListServerTypes(ctx context.Context, identity *model.Identity) ([]hcloud.ServerTypeCatalog, error) {
	client, err := s.client(ctx, identity)
	if err != nil {
		return nil, err
	}
	return client.ListServerTypes(ctx)
}
