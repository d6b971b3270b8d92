package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/hcadmin/internal/credential"
	"github.com/hitoshi/hcadmin/internal/hcloud"
	"github.com/hitoshi/hcadmin/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIdentity() *model.Identity {
	return &model.Identity{
		ExtensionInstanceID: "inst-1",
		ExtensionID:         "ext-1",
		UserID:              "user-1",
	}
}

// fakeCloud はCloudClientのスタブ。
type fakeCloud struct {
	servers     map[int64]*hcloud.Server
	listErr     error
	deleteErr   error
	actions     []string // 発行されたアクションコマンド
	deleted     []int64
	created     *hcloud.CreateServerOpts
	resetCalled bool
	metricsOpts *hcloud.MetricsOpts
	usedToken   string
}

func (f *fakeCloud) ListServers(_ context.Context) ([]hcloud.Server, *hcloud.Meta, error) {
	if f.listErr != nil {
		return nil, nil, f.listErr
	}
	var out []hcloud.Server
	for _, s := range f.servers {
		out = append(out, *s)
	}
	return out, &hcloud.Meta{}, nil
}

func (f *fakeCloud) GetServer(_ context.Context, serverID int64) (*hcloud.Server, error) {
	s, ok := f.servers[serverID]
	if !ok {
		return nil, &model.UpstreamError{StatusCode: 404, Code: "not_found", Message: "server not found"}
	}
	return s, nil
}

func (f *fakeCloud) CreateServer(_ context.Context, opts *hcloud.CreateServerOpts) (*hcloud.CreateServerResult, error) {
	f.created = opts
	rootPassword := "generated-root-pw"
	return &hcloud.CreateServerResult{
		Server:       hcloud.Server{ID: 99, Name: opts.Name, Status: "initializing"},
		Action:       hcloud.Action{ID: 1, Command: "create_server", Status: "running"},
		RootPassword: &rootPassword,
	}, nil
}

func (f *fakeCloud) DeleteServer(_ context.Context, serverID int64) (*hcloud.Action, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, serverID)
	return &hcloud.Action{ID: 2, Command: "delete_server", Status: "running"}, nil
}

func (f *fakeCloud) ServerAction(_ context.Context, serverID int64, command string) (*hcloud.Action, error) {
	f.actions = append(f.actions, command)
	return &hcloud.Action{ID: 3, Command: command, Status: "running"}, nil
}

func (f *fakeCloud) ResetRootPassword(_ context.Context, serverID int64) (*hcloud.ResetPasswordResult, error) {
	f.resetCalled = true
	return &hcloud.ResetPasswordResult{
		RootPassword: "new-root-pw",
		Action:       hcloud.Action{ID: 4, Command: "reset_password", Status: "running"},
	}, nil
}

func (f *fakeCloud) GetServerMetrics(_ context.Context, serverID int64, opts hcloud.MetricsOpts) (*hcloud.Metrics, error) {
	f.metricsOpts = &opts
	return &hcloud.Metrics{Start: opts.Start, End: opts.End}, nil
}

// fakeAssignmentRepo はAssignmentRepositoryのインメモリ実装。
type fakeAssignmentRepo struct {
	rows      map[string]*model.ResourceAssignment
	deleteErr error
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{rows: make(map[string]*model.ResourceAssignment)}
}

func assignmentKey(ownerID string, rt model.ResourceType, rid string) string {
	return ownerID + "/" + string(rt) + "/" + rid
}

func (f *fakeAssignmentRepo) Upsert(_ context.Context, a *model.ResourceAssignment) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	f.rows[assignmentKey(a.OwnerID, a.ResourceType, a.ResourceID)] = a
	return nil
}

func (f *fakeAssignmentRepo) Find(_ context.Context, ownerID string, rt model.ResourceType, rid string) (*model.ResourceAssignment, error) {
	return f.rows[assignmentKey(ownerID, rt, rid)], nil
}

func (f *fakeAssignmentRepo) ListByOwner(_ context.Context, ownerID string) ([]*model.ResourceAssignment, error) {
	var out []*model.ResourceAssignment
	for _, a := range f.rows {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAssignmentRepo) Delete(_ context.Context, ownerID string, rt model.ResourceType, rid string) error {
	key := assignmentKey(ownerID, rt, rid)
	if _, ok := f.rows[key]; !ok {
		return errors.New("レコードが見つかりません")
	}
	delete(f.rows, key)
	return nil
}

func (f *fakeAssignmentRepo) DeleteByResource(_ context.Context, ownerID string, rt model.ResourceType, rid string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.rows, assignmentKey(ownerID, rt, rid))
	return nil
}

// fakeNoteRepo はNoteRepositoryのインメモリ実装。
type fakeNoteRepo struct {
	notes     []*model.ResourceNote
	deleteErr error
}

func (f *fakeNoteRepo) Create(_ context.Context, note *model.ResourceNote) error {
	note.CreatedAt = time.Now()
	f.notes = append(f.notes, note)
	return nil
}

func (f *fakeNoteRepo) ListByResource(_ context.Context, ownerID string, rt model.ResourceType, rid string) ([]*model.ResourceNote, error) {
	var out []*model.ResourceNote
	for _, n := range f.notes {
		if n.OwnerID == ownerID && n.ResourceType == rt && n.ResourceID == rid {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNoteRepo) DeleteByID(_ context.Context, ownerID, noteID string) error {
	for i, n := range f.notes {
		if n.OwnerID == ownerID && n.ID == noteID {
			f.notes = append(f.notes[:i], f.notes[i+1:]...)
			return nil
		}
	}
	return errors.New("レコードが見つかりません")
}

func (f *fakeNoteRepo) DeleteByResource(_ context.Context, ownerID string, rt model.ResourceType, rid string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	var kept []*model.ResourceNote
	for _, n := range f.notes {
		if !(n.OwnerID == ownerID && n.ResourceType == rt && n.ResourceID == rid) {
			kept = append(kept, n)
		}
	}
	f.notes = kept
	return nil
}

// fakeCredentialRepo はCredentialRepositoryのスタブ（常に1トークン保持）。
type fakeCredentialRepo struct{}

func (fakeCredentialRepo) Upsert(_ context.Context, _, _ string) error { return nil }
func (fakeCredentialRepo) Find(_ context.Context, ownerID string) (*model.APICredential, error) {
	return &model.APICredential{OwnerID: ownerID, Token: "stored-token"}, nil
}
func (fakeCredentialRepo) Delete(_ context.Context, _ string) error { return nil }

// emptyCredentialRepo はトークン未設定のスタブ。
type emptyCredentialRepo struct{}

func (emptyCredentialRepo) Upsert(_ context.Context, _, _ string) error { return nil }
func (emptyCredentialRepo) Find(_ context.Context, _ string) (*model.APICredential, error) {
	return nil, nil
}
func (emptyCredentialRepo) Delete(_ context.Context, _ string) error { return nil }

func newTestService(cloud *fakeCloud, assignments *fakeAssignmentRepo, notes *fakeNoteRepo) *Service {
	resolver := credential.NewResolver(fakeCredentialRepo{}, "", testLogger())
	factory := func(token string) CloudClient {
		cloud.usedToken = token
		return cloud
	}
	return NewService(factory, resolver, assignments, notes, testLogger())
}

func TestService_List_UsesResolvedToken(t *testing.T) {
	cloud := &fakeCloud{servers: map[int64]*hcloud.Server{
		1: {ID: 1, Name: "web-1", Status: "running"},
	}}
	s := newTestService(cloud, newFakeAssignmentRepo(), &fakeNoteRepo{})

	servers, err := s.List(context.Background(), testIdentity())
	if err != nil {
		t.Fatalf("List がエラーを返した: %v", err)
	}
	if len(servers) != 1 {
		t.Errorf("len(servers) = %d, want 1", len(servers))
	}
	if cloud.usedToken != "stored-token" {
		t.Errorf("usedToken = %q, want %q", cloud.usedToken, "stored-token")
	}
}

func TestService_List_NoToken_ReturnsConfigurationError(t *testing.T) {
	cloud := &fakeCloud{}
	resolver := credential.NewResolver(emptyCredentialRepo{}, "", testLogger())
	s := NewService(func(token string) CloudClient { return cloud }, resolver,
		newFakeAssignmentRepo(), &fakeNoteRepo{}, testLogger())

	_, err := s.List(context.Background(), testIdentity())
	var ce *model.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("ConfigurationError が返らなかった: %v", err)
	}
}

func TestService_Get_IncludesAssignmentAndNotes(t *testing.T) {
	cloud := &fakeCloud{servers: map[int64]*hcloud.Server{
		42: {ID: 42, Name: "web-1", Status: "running"},
	}}
	assignments := newFakeAssignmentRepo()
	assignments.Upsert(context.Background(), &model.ResourceAssignment{
		OwnerID: "inst-1", ResourceType: model.ResourceTypeServer, ResourceID: "42",
		TenantProjectID: "proj-7",
	})
	notes := &fakeNoteRepo{}
	notes.Create(context.Background(), &model.ResourceNote{
		ID: "note-1", OwnerID: "inst-1", ResourceType: model.ResourceTypeServer,
		ResourceID: "42", Note: "本番", CreatedBy: "user-1",
	})

	s := newTestService(cloud, assignments, notes)
	detail, err := s.Get(context.Background(), testIdentity(), 42)
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if detail.Server.ID != 42 {
		t.Errorf("Server.ID = %d, want 42", detail.Server.ID)
	}
	if detail.Assignment == nil || detail.Assignment.TenantProjectID != "proj-7" {
		t.Errorf("Assignment = %+v, want proj-7", detail.Assignment)
	}
	if len(detail.Notes) != 1 {
		t.Errorf("len(Notes) = %d, want 1", len(detail.Notes))
	}
}

func TestService_Create_NormalizesName(t *testing.T) {
	cloud := &fakeCloud{}
	s := newTestService(cloud, newFakeAssignmentRepo(), &fakeNoteRepo{})

	result, err := s.Create(context.Background(), testIdentity(), &hcloud.CreateServerOpts{
		Name:       "Web Server_01",
		ServerType: "cx11",
		Image:      "ubuntu-24.04",
		Location:   "fsn1",
	})
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}
	if cloud.created.Name != "web-server-01" {
		t.Errorf("送信された名前 = %q, want %q", cloud.created.Name, "web-server-01")
	}
	if result.RootPassword == nil || *result.RootPassword != "generated-root-pw" {
		t.Error("root_passwordが透過されていない")
	}
}

func TestService_Create_LocationDatacenterExclusive(t *testing.T) {
	cloud := &fakeCloud{}
	s := newTestService(cloud, newFakeAssignmentRepo(), &fakeNoteRepo{})

	_, err := s.Create(context.Background(), testIdentity(), &hcloud.CreateServerOpts{
		Name:       "web",
		ServerType: "cx11",
		Image:      "ubuntu-24.04",
		Location:   "fsn1",
		Datacenter: "fsn1-dc8",
	})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("ValidationError が返らなかった: %v", err)
	}
	if cloud.created != nil {
		t.Error("検証エラー時に上流呼び出しが行われた")
	}
}

func TestService_Delete_CleansUpLocalMetadata(t *testing.T) {
	cloud := &fakeCloud{servers: map[int64]*hcloud.Server{
		42: {ID: 42, Name: "web-1", Status: "running"},
	}}
	assignments := newFakeAssignmentRepo()
	assignments.Upsert(context.Background(), &model.ResourceAssignment{
		OwnerID: "inst-1", ResourceType: model.ResourceTypeServer, ResourceID: "42",
	})
	notes := &fakeNoteRepo{}
	notes.Create(context.Background(), &model.ResourceNote{
		ID: "n1", OwnerID: "inst-1", ResourceType: model.ResourceTypeServer, ResourceID: "42", Note: "a",
	})
	notes.Create(context.Background(), &model.ResourceNote{
		ID: "n2", OwnerID: "inst-1", ResourceType: model.ResourceTypeServer, ResourceID: "42", Note: "b",
	})

	s := newTestService(cloud, assignments, notes)
	if _, err := s.Delete(context.Background(), testIdentity(), 42); err != nil {
		t.Fatalf("Delete がエラーを返した: %v", err)
	}

	if a, _ := assignments.Find(context.Background(), "inst-1", model.ResourceTypeServer, "42"); a != nil {
		t.Error("割り当てが残っている")
	}
	remaining, _ := notes.ListByResource(context.Background(), "inst-1", model.ResourceTypeServer, "42")
	if len(remaining) != 0 {
		t.Errorf("メモが%d件残っている", len(remaining))
	}
}

func TestService_Delete_UpstreamFailure_KeepsLocalMetadata(t *testing.T) {
	cloud := &fakeCloud{
		deleteErr: &model.UpstreamError{StatusCode: 423, Code: "locked", Message: "server is locked"},
	}
	assignments := newFakeAssignmentRepo()
	assignments.Upsert(context.Background(), &model.ResourceAssignment{
		OwnerID: "inst-1", ResourceType: model.ResourceTypeServer, ResourceID: "42",
	})
	notes := &fakeNoteRepo{}
	notes.Create(context.Background(), &model.ResourceNote{
		ID: "n1", OwnerID: "inst-1", ResourceType: model.ResourceTypeServer, ResourceID: "42", Note: "a",
	})

	s := newTestService(cloud, assignments, notes)
	_, err := s.Delete(context.Background(), testIdentity(), 42)
	var ue *model.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("UpstreamError が返らなかった: %v", err)
	}

	// 上流の削除が失敗した場合、ローカルの後始末は行われない
	if a, _ := assignments.Find(context.Background(), "inst-1", model.ResourceTypeServer, "42"); a == nil {
		t.Error("割り当てが削除されてしまった")
	}
	remaining, _ := notes.ListByResource(context.Background(), "inst-1", model.ResourceTypeServer, "42")
	if len(remaining) != 1 {
		t.Error("メモが削除されてしまった")
	}
}

func TestService_Delete_CleanupFailureIsSwallowed(t *testing.T) {
	cloud := &fakeCloud{servers: map[int64]*hcloud.Server{42: {ID: 42, Name: "web-1", Status: "running"}}}
	assignments := newFakeAssignmentRepo()
	assignments.deleteErr = model.NewPersistenceError("assignment.cleanup", errors.New("db down"))
	notes := &fakeNoteRepo{}
	notes.deleteErr = model.NewPersistenceError("note.cleanup", errors.New("db down"))

	s := newTestService(cloud, assignments, notes)
	action, err := s.Delete(context.Background(), testIdentity(), 42)
	if err != nil {
		t.Fatalf("後始末の失敗が表面化した: %v", err)
	}
	if action == nil || action.Command != "delete_server" {
		t.Errorf("action = %+v", action)
	}
}

func TestService_PerformAction_StateGuard(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		action  string
		allowed bool
	}{
		{"off状態からのpoweron", "off", "poweron", true},
		{"running状態からのpoweroff", "running", "poweroff", true},
		{"running状態からのpoweron", "running", "poweron", true},
		{"off状態からのreboot", "off", "reboot", false},
		{"off状態からのshutdown", "off", "shutdown", false},
		{"running状態からのreboot", "running", "reboot", true},
		{"running状態からのshutdown", "running", "shutdown", true},
		{"migrating状態からのpoweron", "migrating", "poweron", false},
		{"starting状態からのshutdown", "starting", "shutdown", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cloud := &fakeCloud{servers: map[int64]*hcloud.Server{
				1: {ID: 1, Name: "web", Status: tt.status},
			}}
			s := newTestService(cloud, newFakeAssignmentRepo(), &fakeNoteRepo{})

			_, err := s.PerformAction(context.Background(), testIdentity(), 1, tt.action)
			if tt.allowed {
				if err != nil {
					t.Fatalf("許可されるべきアクションが拒否された: %v", err)
				}
				if len(cloud.actions) != 1 || cloud.actions[0] != tt.action {
					t.Errorf("actions = %v", cloud.actions)
				}
			} else {
				var ve *model.ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("ValidationError が返らなかった: %v", err)
				}
				if len(cloud.actions) != 0 {
					t.Error("拒否されたのに上流アクションが発行された")
				}
			}
		})
	}
}

func TestService_PerformAction_UnknownAction(t *testing.T) {
	cloud := &fakeCloud{servers: map[int64]*hcloud.Server{1: {ID: 1, Name: "web", Status: "running"}}}
	s := newTestService(cloud, newFakeAssignmentRepo(), &fakeNoteRepo{})

	_, err := s.PerformAction(context.Background(), testIdentity(), 1, "destroy")
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("未知のアクションでValidationErrorが返らなかった: %v", err)
	}
}

func TestService_ResetRootPassword_RequiresRunning(t *testing.T) {
	cloud := &fakeCloud{servers: map[int64]*hcloud.Server{
		1: {ID: 1, Name: "web", Status: "off"},
	}}
	s := newTestService(cloud, newFakeAssignmentRepo(), &fakeNoteRepo{})

	_, err := s.ResetRootPassword(context.Background(), testIdentity(), 1)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("停止中サーバーでValidationErrorが返らなかった: %v", err)
	}
	if cloud.resetCalled {
		t.Error("拒否されたのにリセットが実行された")
	}

	cloud.servers[1].Status = "running"
	result, err := s.ResetRootPassword(context.Background(), testIdentity(), 1)
	if err != nil {
		t.Fatalf("ResetRootPassword がエラーを返した: %v", err)
	}
	if result.RootPassword != "new-root-pw" {
		t.Errorf("RootPassword = %q", result.RootPassword)
	}
}

func TestService_GetMetrics_DefaultsTo24hWindow(t *testing.T) {
	cloud := &fakeCloud{servers: map[int64]*hcloud.Server{1: {ID: 1, Name: "web", Status: "running"}}}
	s := newTestService(cloud, newFakeAssignmentRepo(), &fakeNoteRepo{})

	before := time.Now().UTC()
	_, err := s.GetMetrics(context.Background(), testIdentity(), 1, hcloud.MetricsOpts{})
	if err != nil {
		t.Fatalf("GetMetrics がエラーを返した: %v", err)
	}

	if cloud.metricsOpts.Type != "cpu" {
		t.Errorf("Type = %q, want cpu", cloud.metricsOpts.Type)
	}
	start, err := time.Parse(time.RFC3339, cloud.metricsOpts.Start)
	if err != nil {
		t.Fatalf("Start がRFC3339でない: %v", err)
	}
	end, err := time.Parse(time.RFC3339, cloud.metricsOpts.End)
	if err != nil {
		t.Fatalf("End がRFC3339でない: %v", err)
	}
	window := end.Sub(start)
	if window != 24*time.Hour {
		t.Errorf("期間 = %v, want 24h", window)
	}
	if end.Before(before.Add(-time.Minute)) {
		t.Errorf("End が現在時刻から離れすぎている: %v", end)
	}
}

func TestService_GetMetrics_ExplicitWindowPreserved(t *testing.T) {
	cloud := &fakeCloud{servers: map[int64]*hcloud.Server{1: {ID: 1, Name: "web", Status: "running"}}}
	s := newTestService(cloud, newFakeAssignmentRepo(), &fakeNoteRepo{})

	opts := hcloud.MetricsOpts{
		Type:  "disk,network",
		Start: "2026-08-01T00:00:00Z",
		End:   "2026-08-02T00:00:00Z",
		Step:  "60",
	}
	if _, err := s.GetMetrics(context.Background(), testIdentity(), 1, opts); err != nil {
		t.Fatalf("GetMetrics がエラーを返した: %v", err)
	}
	if *cloud.metricsOpts != opts {
		t.Errorf("metricsOpts = %+v, want %+v", *cloud.metricsOpts, opts)
	}
}
