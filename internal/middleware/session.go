// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/hcadmin/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに検証済みIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// SessionVerifier はセッショントークンの検証に必要なインターフェース。
// auth.Verifierの部分集合として定義する。
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*model.Identity, error)
}

// NewSessionMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 検証済みIdentityをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには統一エラーフォーマットで401を返す。
func NewSessionMiddleware(verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteError(w, model.NewAuthenticationError("セッショントークンがありません", nil))
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				slog.Warn("session verification failed",
					slog.String("error", err.Error()),
				)
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// IdentityFromContext はリクエストコンテキストから検証済みIdentityを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
