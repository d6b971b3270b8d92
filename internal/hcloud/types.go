package hcloud

import (
	"encoding/json"
	"fmt"

	"github.com/hitoshi/hcadmin/internal/validation"
)

// Amount は上流の税込(gross)/税抜(net)価格ペアを表す。
// 金額は上流表現のまま10進文字列として保持する。
type Amount struct {
	Gross string `json:"gross" validate:"required"`
	Net   string `json:"net" validate:"required"`
}

// Price はロケーションごとの時間/月額価格を表す。
type Price struct {
	Location     string `json:"location" validate:"required"`
	PriceHourly  Amount `json:"price_hourly"`
	PriceMonthly Amount `json:"price_monthly" validate:"required"`
}

// Location はHetznerのロケーションを表す。
type Location struct {
	ID        int64   `json:"id" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Country   string  `json:"country"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Datacenter はサーバーが配置されているデータセンターを表す。
type Datacenter struct {
	ID       int64    `json:"id" validate:"required"`
	Name     string   `json:"name" validate:"required"`
	Location Location `json:"location" validate:"required"`
}

// ServerType はサーバーに埋め込まれたサーバータイプ情報を表す。
type ServerType struct {
	ID     int64   `json:"id" validate:"required"`
	Name   string  `json:"name" validate:"required"`
	Cores  int     `json:"cores"`
	Memory float64 `json:"memory"`
	Disk   int     `json:"disk"`
	Prices []Price `json:"prices" validate:"dive"`
}

// IPv4 はサーバーのパブリックIPv4を表す。
type IPv4 struct {
	IP      string `json:"ip"`
	Blocked bool   `json:"blocked"`
	DNSPtr  string `json:"dns_ptr"`
}

// IPv6 はサーバーのパブリックIPv6を表す。
type IPv6 struct {
	IP      string `json:"ip"`
	Blocked bool   `json:"blocked"`
}

// PublicNet はサーバーのパブリックネットワーク構成を表す。
type PublicNet struct {
	IPv4 *IPv4 `json:"ipv4"`
	IPv6 *IPv6 `json:"ipv6"`
}

// Protection はリソースの削除保護設定を表す。
type Protection struct {
	Delete  bool `json:"delete"`
	Rebuild bool `json:"rebuild"`
}

// Image はOSイメージを表す。
type Image struct {
	ID          int64             `json:"id" validate:"required"`
	Type        string            `json:"type" validate:"required,oneof=system snapshot backup app"`
	Status      string            `json:"status" validate:"omitempty,oneof=available creating unavailable"`
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	DiskSize    float64           `json:"disk_size"`
	Created     string            `json:"created"`
	OSFlavor    *string           `json:"os_flavor"`
	OSVersion   *string           `json:"os_version"`
	RapidDeploy bool              `json:"rapid_deploy"`
	Deprecated  *string           `json:"deprecated"`
	Labels      map[string]string `json:"labels"`
}

// Server はHetzner上のサーバーを表す。所有はせず読み取り中心のミラービュー。
// フィールドは上流スキーマの検証結果そのもので、未知フィールドは無視し、
// 必須フィールドの欠落はフェッチ自体を失敗させる。
type Server struct {
	ID              int64             `json:"id" validate:"required"`
	Name            string            `json:"name" validate:"required"`
	Status          string            `json:"status" validate:"required,oneof=running initializing starting stopping off deleting migrating rebuilding unknown"`
	Created         string            `json:"created"`
	PublicNet       *PublicNet        `json:"public_net"`
	ServerType      ServerType        `json:"server_type" validate:"required"`
	Datacenter      Datacenter        `json:"datacenter" validate:"required"`
	Image           *Image            `json:"image"`
	BackupWindow    *string           `json:"backup_window"`
	RescueEnabled   bool              `json:"rescue_enabled"`
	Locked          bool              `json:"locked"`
	Protection      Protection        `json:"protection"`
	Labels          map[string]string `json:"labels"`
	Volumes         []int64           `json:"volumes"`
	PrimaryDiskSize int               `json:"primary_disk_size"`
}

// Volume はブロックストレージボリュームを表す。Sizeの単位はGB。
type Volume struct {
	ID          int64             `json:"id" validate:"required"`
	Created     string            `json:"created"`
	Name        string            `json:"name" validate:"required"`
	Server      *int64            `json:"server"`
	Location    Location          `json:"location" validate:"required"`
	Size        int64             `json:"size" validate:"required"`
	LinuxDevice string            `json:"linux_device"`
	Protection  Protection        `json:"protection"`
	Labels      map[string]string `json:"labels"`
	Status      string            `json:"status" validate:"required,oneof=creating available attaching detaching deleting"`
	Format      *string           `json:"format"`
}

// FloatingIP はフローティングIPを表す。
type FloatingIP struct {
	ID           int64    `json:"id" validate:"required"`
	Description  *string  `json:"description"`
	IP           string   `json:"ip" validate:"required"`
	Type         string   `json:"type" validate:"required,oneof=ipv4 ipv6"`
	Server       *int64   `json:"server"`
	HomeLocation Location `json:"home_location" validate:"required"`
	Blocked      bool     `json:"blocked"`
	Protection   struct {
		Delete bool `json:"delete"`
	} `json:"protection"`
	Labels  map[string]string `json:"labels"`
	Created string            `json:"created"`
	Name    *string           `json:"name"`
}

// ActionResource はアクションの対象リソースを表す。
type ActionResource struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// ActionError はアクションの失敗理由を表す。
type ActionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Action はHetzner上の非同期アクションを表す。
type Action struct {
	ID        int64            `json:"id" validate:"required"`
	Command   string           `json:"command" validate:"required"`
	Status    string           `json:"status" validate:"required,oneof=running success error"`
	Progress  float64          `json:"progress"`
	Started   string           `json:"started"`
	Finished  *string          `json:"finished"`
	Resources []ActionResource `json:"resources"`
	Error     *ActionError     `json:"error"`
}

// PricingServerType は料金カタログ内のサーバータイプ別価格を表す。
type PricingServerType struct {
	ID     int64   `json:"id" validate:"required"`
	Name   string  `json:"name" validate:"required"`
	Prices []Price `json:"prices" validate:"dive"`
}

// PerGBMonth はGB月あたりの単価を表す。
type PerGBMonth struct {
	PricePerGBMonth Amount `json:"price_per_gb_month" validate:"required"`
}

// Pricing は料金カタログ全体を表す。コスト見積もりはすべてGross（税込）を使う。
type Pricing struct {
	Currency   string     `json:"currency" validate:"required"`
	VATRate    string     `json:"vat_rate"`
	Image      PerGBMonth `json:"image"`
	FloatingIP struct {
		PriceMonthly Amount `json:"price_monthly" validate:"required"`
	} `json:"floating_ip" validate:"required"`
	ServerBackup struct {
		Percentage string `json:"percentage"`
	} `json:"server_backup"`
	ServerTypes []PricingServerType `json:"server_types" validate:"dive"`
	Volume      PerGBMonth          `json:"volume" validate:"required"`
}

// Pagination は上流のページネーションメタ情報を表す。
type Pagination struct {
	Page         int    `json:"page"`
	PerPage      int    `json:"per_page"`
	PreviousPage *int   `json:"previous_page"`
	NextPage     *int   `json:"next_page"`
	LastPage     *int   `json:"last_page"`
	TotalEntries *int64 `json:"total_entries"`
}

// Meta は一覧レスポンスのメタ情報を表す。
type Meta struct {
	Pagination Pagination `json:"pagination"`
}

// ServerTypeCatalog はサーバータイプカタログのエントリを表す。
type ServerTypeCatalog struct {
	ID          int64   `json:"id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Cores       int     `json:"cores"`
	Memory      float64 `json:"memory"`
	Disk        int     `json:"disk"`
	Prices      []Price `json:"prices" validate:"dive"`
}

// TimeSeries はメトリクスの時系列データを表す。
// 各サンプルは[timestamp, value]のペアで、形状は上流表現のまま透過する。
type TimeSeries struct {
	Values []json.RawMessage `json:"values"`
}

// Metrics はサーバーメトリクスを表す。
type Metrics struct {
	Start      string                `json:"start" validate:"required"`
	End        string                `json:"end" validate:"required"`
	Step       float64               `json:"step"`
	TimeSeries map[string]TimeSeries `json:"time_series"`
}

// SSHKeyRef はサーバー作成時のSSH鍵参照。上流は名前（文字列）と数値IDの
// どちらも受け付けるため、受け取った表現のまま保持して送る。
type SSHKeyRef struct {
	name string
	id   int64
	byID bool
}

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (r *SSHKeyRef) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		*r = SSHKeyRef{name: v}
		return nil
	case float64:
		n := int64(v)
		if float64(n) != v {
			return fmt.Errorf("SSH鍵IDは整数で指定してください: %v", v)
		}
		*r = SSHKeyRef{id: n, byID: true}
		return nil
	default:
		return fmt.Errorf("SSH鍵は名前または数値IDで指定してください (got %T)", raw)
	}
}

// MarshalJSON はjson.Marshalerを実装する。
func (r SSHKeyRef) MarshalJSON() ([]byte, error) {
	if r.byID {
		return json.Marshal(r.id)
	}
	return json.Marshal(r.name)
}

// FirewallRef はサーバー作成時のファイアウォール指定を表す。
type FirewallRef struct {
	Firewall validation.FlexID `json:"firewall"`
}

// PublicNetOpts はサーバー作成時のパブリックネットワーク指定を表す。
type PublicNetOpts struct {
	EnableIPv4 *bool  `json:"enable_ipv4,omitempty"`
	EnableIPv6 *bool  `json:"enable_ipv6,omitempty"`
	IPv4       *int64 `json:"ipv4,omitempty"`
	IPv6       *int64 `json:"ipv6,omitempty"`
}

// CreateServerOpts はサーバー作成のペイロードを表す。
// imageは名前と数値IDのどちらも受け付ける上流仕様のため不透明な文字列として扱う。
// 数値ID系のフィールドは文字列表現のIDも受け付け、境界で整数へ正規化する。
type CreateServerOpts struct {
	Name             string              `json:"name" validate:"required,max=63"`
	ServerType       string              `json:"server_type" validate:"required"`
	Image            string              `json:"image" validate:"required"`
	Location         string              `json:"location,omitempty"`
	Datacenter       string              `json:"datacenter,omitempty"`
	StartAfterCreate *bool               `json:"start_after_create,omitempty"`
	SSHKeys          []SSHKeyRef         `json:"ssh_keys,omitempty"`
	Volumes          []validation.FlexID `json:"volumes,omitempty"`
	Networks         []validation.FlexID `json:"networks,omitempty"`
	Firewalls        []FirewallRef       `json:"firewalls,omitempty"`
	PlacementGroup   *validation.FlexID  `json:"placement_group,omitempty"`
	UserData         string              `json:"user_data,omitempty"`
	Labels           map[string]string   `json:"labels,omitempty"`
	Automount        *bool               `json:"automount,omitempty"`
	PublicNet        *PublicNetOpts      `json:"public_net,omitempty"`
}

// CreateServerResult はサーバー作成の結果を表す。
// root_passwordはSSH鍵を指定しなかった場合のみ返り、呼び出し元にそのまま渡す（ログには残さない）。
type CreateServerResult struct {
	Server       Server   `json:"server" validate:"required"`
	Action       Action   `json:"action" validate:"required"`
	NextActions  []Action `json:"next_actions"`
	RootPassword *string  `json:"root_password"`
}

// ResetPasswordResult はrootパスワードリセットの結果を表す。
type ResetPasswordResult struct {
	RootPassword string `json:"root_password" validate:"required"`
	Action       Action `json:"action" validate:"required"`
}

// MetricsOpts はメトリクス取得のパラメータを表す。
type MetricsOpts struct {
	Type  string // cpu, disk, network またはカンマ区切りの組み合わせ
	Start string // RFC3339
	End   string // RFC3339
	Step  string // 秒単位の解像度（省略可）
}
