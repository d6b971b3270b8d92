package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// publicKeyPath はアイデンティティホストが署名検証鍵を公開するパス。
const publicKeyPath = "/.well-known/session-public-key"

// defaultKeyTTL は取得した公開鍵のキャッシュ期間。
// 鍵ローテーションは稀なので、この間隔での再取得で十分追従できる。
const defaultKeyTTL = 5 * time.Minute

// PublicKeySource はアイデンティティホストからセッション検証用の
// RSA公開鍵を取得しキャッシュする。
type PublicKeySource struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string

	mu        sync.Mutex
	key       *rsa.PublicKey
	fetchedAt time.Time
	ttl       time.Duration
}

// NewPublicKeySource はPublicKeySourceを生成する。
// identityHostURLはアイデンティティホストのベースURL（例: "https://identity.example.com"）。
func NewPublicKeySource(httpClient *http.Client, logger *slog.Logger, identityHostURL string) *PublicKeySource {
	return &PublicKeySource{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimSuffix(identityHostURL, "/"),
		ttl:        defaultKeyTTL,
	}
}

// Get は検証用の公開鍵を返す。キャッシュが有効な間はネットワークに出ない。
func (s *PublicKeySource) Get(ctx context.Context) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil && time.Since(s.fetchedAt) < s.ttl {
		return s.key, nil
	}

	// 再取得に失敗したら古い鍵では続行しない。ローテーション済みの鍵を
	// TTLを超えて受け入れ続けることになるため、検証ごと失敗させる。
	key, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	s.key = key
	s.fetchedAt = time.Now()
	return key, nil
}

// fetch はアイデンティティホストからPEM形式の公開鍵を取得する。
func (s *PublicKeySource) fetch(ctx context.Context) (*rsa.PublicKey, error) {
	url := s.baseURL + publicKeyPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("公開鍵リクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("アイデンティティホストへの接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("アイデンティティホストがエラーを返しました: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("公開鍵レスポンスの読み取りに失敗しました: %w", err)
	}

	key, err := parsePublicKeyPEM(body)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("セッション公開鍵を取得しました", slog.String("url", url))
	return key, nil
}

// parsePublicKeyPEM はPEMエンコードされたRSA公開鍵をパースする。
func parsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("公開鍵のPEMデコードに失敗しました")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("公開鍵のパースに失敗しました: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("公開鍵がRSA鍵ではありません")
	}
	return rsaKey, nil
}
