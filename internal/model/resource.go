package model

import "time"

// ResourceType はローカル管理メタデータを付与できるHetznerリソース種別を表す。
type ResourceType string

const (
	ResourceTypeServer       ResourceType = "server"
	ResourceTypeVolume       ResourceType = "volume"
	ResourceTypeFloatingIP   ResourceType = "floating_ip"
	ResourceTypePrimaryIP    ResourceType = "primary_ip"
	ResourceTypeLoadBalancer ResourceType = "load_balancer"
	ResourceTypeNetwork      ResourceType = "network"
	ResourceTypeFirewall     ResourceType = "firewall"
)

// ValidResourceType はリソース種別が定義済みのものかどうかを返す。
func ValidResourceType(t ResourceType) bool {
	switch t {
	case ResourceTypeServer, ResourceTypeVolume, ResourceTypeFloatingIP,
		ResourceTypePrimaryIP, ResourceTypeLoadBalancer, ResourceTypeNetwork,
		ResourceTypeFirewall:
		return true
	}
	return false
}

// APICredential はテナントごとのHetzner APIトークンを表す。
// トークンは保存時にAES-GCMで暗号化され、1テナントにつき最大1行（UPSERT）。
// 読み取り系の公開では生のシークレットを返さず、存在有無とメタデータのみ返す。
type APICredential struct {
	OwnerID   string // extensionInstanceId
	Token     string // 平文トークン。リポジトリ外へは資格情報解決経路でのみ渡る
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CredentialSource は解決されたAPIトークンの出所を表す。
type CredentialSource string

const (
	// CredentialSourceEnvironment はプロセス全体の環境変数オーバーライド。
	CredentialSourceEnvironment CredentialSource = "environment"
	// CredentialSourceDatabase はテナントごとの暗号化保存トークン。
	CredentialSourceDatabase CredentialSource = "database"
	// CredentialSourceNone はトークン未設定。
	CredentialSourceNone CredentialSource = "none"
)

// CredentialStatus はトークン設定状態の読み取り専用ビュー。
// シークレット本体は決して含まない。
type CredentialStatus struct {
	HasToken     bool
	Source       CredentialSource
	ConfiguredAt *time.Time
}

// ResourceAssignment はHetznerリソースとテナント/顧客/プロジェクトの紐付けを表す。
// (OwnerID, ResourceType, ResourceID)で一意。割り当てでUPSERT、
// 割り当て解除または対象リソース削除時に削除される。
type ResourceAssignment struct {
	OwnerID          string       `json:"-"`
	ResourceType     ResourceType `json:"resource_type"`
	ResourceID       string       `json:"resource_id"`
	ResourceName     string       `json:"resource_name"`
	TenantProjectID  string       `json:"tenant_project_id"`
	TenantCustomerID string       `json:"tenant_customer_id"`
	Tags             []string     `json:"tags"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// ResourceNote はリソースに付与された自由記述メモを表す。
// 追記のみで、削除はowner単位にスコープされた明示的なID指定削除に限る。
type ResourceNote struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"-"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	Note         string       `json:"note"`
	CreatedBy    string       `json:"created_by"` // userId
	CreatedAt    time.Time    `json:"created_at"`
}
