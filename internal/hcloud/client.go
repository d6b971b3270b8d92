// Package hcloud はHetzner Cloud REST APIの型付きクライアントを提供する。
// すべての呼び出しをレスポンススキーマ検証と正規化されたエラー変換でラップする。
// 自動リトライは行わない（リトライ判断は呼び出し元の責務）。
package hcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/hcadmin/internal/model"
)

// DefaultBaseURL はHetzner Cloud APIのエンドポイント。
const DefaultBaseURL = "https://api.hetzner.cloud/v1"

// サーバーアクションのコマンド名
const (
	ActionPowerOn  = "poweron"
	ActionPowerOff = "poweroff"
	ActionReboot   = "reboot"
	ActionShutdown = "shutdown"
)

var (
	schemaValidator     *validator.Validate
	schemaValidatorOnce sync.Once
)

// validateSchema はデコード済みレスポンスを構造体タグに基づいて検証する。
func validateSchema(operation string, v any) error {
	schemaValidatorOnce.Do(func() {
		schemaValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := schemaValidator.Struct(v); err != nil {
		return &model.SchemaError{Operation: operation, Err: err}
	}
	return nil
}

// CallObserver は上流API呼び出しの計測インターフェース。
// metricsパッケージが実装する。
type CallObserver interface {
	ObserveUpstreamCall(operation string, statusCode int, duration time.Duration)
}

// Client はHetzner Cloud APIのクライアント。1リクエスト分のトークンに紐付く。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
	token      string
	observer   CallObserver
}

// Factory はトークンごとのClient生成を担う。
// エンドポイント・HTTPクライアント・計測は全Clientで共有する。
type Factory struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	observer   CallObserver
}

// NewFactory はFactoryを生成する。baseURLが空の場合はDefaultBaseURLを使う。
func NewFactory(httpClient *http.Client, logger *slog.Logger, baseURL string, observer CallObserver) *Factory {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Factory{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		observer:   observer,
	}
}

// Client は指定トークンで認証するClientを生成する。
func (f *Factory) Client(token string) *Client {
	return &Client{
		httpClient: f.httpClient,
		logger:     f.logger,
		baseURL:    f.baseURL,
		token:      token,
		observer:   f.observer,
	}
}

// ProbeToken は候補トークンでサーバー一覧を1回呼び、トークンの有効性を確認する。
// 一覧取得は読み取り専用かつ全トークンに許可されている最小の呼び出し。
func (f *Factory) ProbeToken(ctx context.Context, token string) error {
	_, _, err := f.Client(token).ListServers(ctx)
	return err
}

// upstreamErrorBody は上流のエラーレスポンス形状。
type upstreamErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do は認証付きリクエストを1回実行し、レスポンスをoutへデコードして検証する。
// 非2xxはUpstreamError、スキーマ不一致はSchemaErrorに変換する。
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body any, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, 0, time.Since(start))
		c.logger.Error("hetzner api request failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("Hetzner APIの呼び出しに失敗しました (%s): %w", operation, err)
	}
	defer resp.Body.Close()

	c.observe(operation, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました (%s): %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.translateError(operation, resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &model.SchemaError{Operation: operation, Err: err}
	}
	return validateSchema(operation, out)
}

// translateError は上流のエラーボディをUpstreamErrorへ変換する。
// ボディがパースできない場合はHTTPステータステキストにフォールバックする。
func (c *Client) translateError(operation string, statusCode int, body []byte) error {
	ue := &model.UpstreamError{
		StatusCode: statusCode,
		Code:       "unknown_error",
		Message:    fmt.Sprintf("HTTP %d: %s", statusCode, http.StatusText(statusCode)),
	}

	var parsed upstreamErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Code != "" {
		ue.Code = parsed.Error.Code
		if parsed.Error.Message != "" {
			ue.Message = parsed.Error.Message
		}
	}

	c.logger.Warn("hetzner api returned error status",
		slog.String("operation", operation),
		slog.Int("http_status", statusCode),
		slog.String("upstream_code", ue.Code),
	)
	return ue
}

func (c *Client) observe(operation string, statusCode int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveUpstreamCall(operation, statusCode, d)
	}
}

type serversResponse struct {
	Servers []Server `json:"servers" validate:"dive"`
	Meta    Meta     `json:"meta"`
}

// ListServers は全サーバーの一覧を取得する。
func (c *Client) ListServers(ctx context.Context) ([]Server, *Meta, error) {
	var resp serversResponse
	if err := c.do(ctx, "list_servers", http.MethodGet, "/servers", nil, nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Servers, &resp.Meta, nil
}

type serverResponse struct {
	Server Server `json:"server" validate:"required"`
}

// GetServer は指定IDのサーバーを取得する。
func (c *Client) GetServer(ctx context.Context, serverID int64) (*Server, error) {
	var resp serverResponse
	path := "/servers/" + strconv.FormatInt(serverID, 10)
	if err := c.do(ctx, "get_server", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Server, nil
}

// CreateServer はサーバーを作成する。
// 結果のroot_passwordは呼び出し元へそのまま返し、ログには残さない。
func (c *Client) CreateServer(ctx context.Context, opts *CreateServerOpts) (*CreateServerResult, error) {
	var resp CreateServerResult
	if err := c.do(ctx, "create_server", http.MethodPost, "/servers", nil, opts, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type actionResponse struct {
	Action Action `json:"action" validate:"required"`
}

// DeleteServer は指定IDのサーバーを削除する。
func (c *Client) DeleteServer(ctx context.Context, serverID int64) (*Action, error) {
	var resp actionResponse
	path := "/servers/" + strconv.FormatInt(serverID, 10)
	if err := c.do(ctx, "delete_server", http.MethodDelete, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Action, nil
}

// ServerAction は電源系アクション（poweron/poweroff/reboot/shutdown）を実行する。
// この層では冪等ではない。同じアクションを2回発行すると上流アクションが2つ生成される。
func (c *Client) ServerAction(ctx context.Context, serverID int64, command string) (*Action, error) {
	var resp actionResponse
	path := "/servers/" + strconv.FormatInt(serverID, 10) + "/actions/" + command
	if err := c.do(ctx, "server_action_"+command, http.MethodPost, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Action, nil
}

// ResetRootPassword はrootパスワードをリセットする。
func (c *Client) ResetRootPassword(ctx context.Context, serverID int64) (*ResetPasswordResult, error) {
	var resp ResetPasswordResult
	path := "/servers/" + strconv.FormatInt(serverID, 10) + "/actions/reset_password"
	if err := c.do(ctx, "reset_root_password", http.MethodPost, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type metricsResponse struct {
	Metrics Metrics `json:"metrics" validate:"required"`
}

// GetServerMetrics はサーバーメトリクスを取得する。
func (c *Client) GetServerMetrics(ctx context.Context, serverID int64, opts MetricsOpts) (*Metrics, error) {
	query := url.Values{}
	query.Set("type", opts.Type)
	query.Set("start", opts.Start)
	query.Set("end", opts.End)
	if opts.Step != "" {
		query.Set("step", opts.Step)
	}

	var resp metricsResponse
	path := "/servers/" + strconv.FormatInt(serverID, 10) + "/metrics"
	if err := c.do(ctx, "get_server_metrics", http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Metrics, nil
}

type volumesResponse struct {
	Volumes []Volume `json:"volumes" validate:"dive"`
	Meta    Meta     `json:"meta"`
}

// ListVolumes は全ボリュームの一覧を取得する。
func (c *Client) ListVolumes(ctx context.Context) ([]Volume, *Meta, error) {
	var resp volumesResponse
	if err := c.do(ctx, "list_volumes", http.MethodGet, "/volumes", nil, nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Volumes, &resp.Meta, nil
}

type floatingIPsResponse struct {
	FloatingIPs []FloatingIP `json:"floating_ips" validate:"dive"`
	Meta        Meta         `json:"meta"`
}

// ListFloatingIPs は全フローティングIPの一覧を取得する。
func (c *Client) ListFloatingIPs(ctx context.Context) ([]FloatingIP, *Meta, error) {
	var resp floatingIPsResponse
	if err := c.do(ctx, "list_floating_ips", http.MethodGet, "/floating_ips", nil, nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.FloatingIPs, &resp.Meta, nil
}

type pricingResponse struct {
	Pricing Pricing `json:"pricing" validate:"required"`
}

// GetPricing は現在の料金カタログを取得する。
func (c *Client) GetPricing(ctx context.Context) (*Pricing, error) {
	var resp pricingResponse
	if err := c.do(ctx, "get_pricing", http.MethodGet, "/pricing", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Pricing, nil
}

type imagesResponse struct {
	Images []Image `json:"images" validate:"dive"`
}

// ListImages は指定タイプのイメージ一覧を取得する。
// サーバー作成フォームのカタログ用途にはtype=systemを渡す。
func (c *Client) ListImages(ctx context.Context, imageType string) ([]Image, error) {
	query := url.Values{}
	if imageType != "" {
		query.Set("type", imageType)
	}
	query.Set("status", "available")

	var resp imagesResponse
	if err := c.do(ctx, "list_images", http.MethodGet, "/images", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

type locationsResponse struct {
	Locations []Location `json:"locations" validate:"dive"`
}

// ListLocations は全ロケーションの一覧を取得する。
func (c *Client) ListLocations(ctx context.Context) ([]Location, error) {
	var resp locationsResponse
	if err := c.do(ctx, "list_locations", http.MethodGet, "/locations", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Locations, nil
}

type serverTypesResponse struct {
	ServerTypes []ServerTypeCatalog `json:"server_types" validate:"dive"`
}

// ListServerTypes は全サーバータイプのカタログを取得する。
func (c *Client) ListServerTypes(ctx context.Context) ([]ServerTypeCatalog, error) {
	var resp serverTypesResponse
	if err := c.do(ctx, "list_server_types", http.MethodGet, "/server_types", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ServerTypes, nil
}
