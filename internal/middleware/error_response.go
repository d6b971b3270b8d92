package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/hcadmin/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Category   string                 `json:"category"`
	Action     string                 `json:"action"`
	Violations []model.FieldViolation `json:"violations,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, body ErrorResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// WriteError はエラー分類からHTTPステータスと統一フォーマットを導出して書き込む。
// 分類に該当しないエラーは詳細をログのみに記録し、500の一般メッセージを返す。
func WriteError(w http.ResponseWriter, err error) {
	status, body := MapError(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", slog.String("error", err.Error()))
	}
	WriteErrorResponse(w, status, body)
}

// MapError はエラー分類をHTTPステータスとレスポンスボディへ対応付ける。
// 対応: 認証→401、検証→400、設定→412、上流→上流ステータス（5xxは502）、
// スキーマ→502、永続化→500。
func MapError(err error) (int, ErrorResponseBody) {
	var authErr *model.AuthenticationError
	if errors.As(err, &authErr) {
		return http.StatusUnauthorized, ErrorResponseBody{
			Code:     model.ErrCodeUnauthorized,
			Message:  "認証に失敗しました。",
			Category: "auth",
			Action:   "再度ログインしてください。",
		}
	}

	var valErr *model.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest, ErrorResponseBody{
			Code:       model.ErrCodeValidationFailed,
			Message:    "入力値に誤りがあります。",
			Category:   "validation",
			Action:     "入力内容を確認してください。",
			Violations: valErr.Violations,
		}
	}

	var confErr *model.ConfigurationError
	if errors.As(err, &confErr) {
		return http.StatusPreconditionFailed, ErrorResponseBody{
			Code:     model.ErrCodeTokenNotConfigured,
			Message:  confErr.Message,
			Category: "configuration",
			Action:   "設定画面でHetzner APIトークンを登録してください。",
		}
	}

	var upErr *model.UpstreamError
	if errors.As(err, &upErr) {
		// 上流の401はテナントの設定済みトークンが無効であることを意味する。
		// セッション切れ（本APIの401）と混同させないため400で返す。
		if upErr.StatusCode == http.StatusUnauthorized || upErr.StatusCode == http.StatusForbidden {
			return http.StatusBadRequest, ErrorResponseBody{
				Code:     model.ErrCodeInvalidToken,
				Message:  "Hetzner APIがトークンを拒否しました。",
				Category: "configuration",
				Action:   "設定画面でAPIトークンを確認してください。",
			}
		}
		if upErr.Retryable() {
			return http.StatusBadGateway, ErrorResponseBody{
				Code:     model.ErrCodeUpstreamFailed,
				Message:  "Hetzner APIが一時的に利用できません。",
				Category: "upstream",
				Action:   "しばらく待ってから再度お試しください。",
			}
		}
		return upErr.StatusCode, ErrorResponseBody{
			Code:     model.ErrCodeUpstreamRejected,
			Message:  upErr.Message,
			Category: "upstream",
			Action:   "リクエスト内容を確認してください。",
		}
	}

	var schemaErr *model.SchemaError
	if errors.As(err, &schemaErr) {
		return http.StatusBadGateway, ErrorResponseBody{
			Code:     model.ErrCodeSchemaMismatch,
			Message:  "Hetzner APIのレスポンスが想定と異なります。",
			Category: "schema",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}

	var persErr *model.PersistenceError
	if errors.As(err, &persErr) {
		return http.StatusInternalServerError, ErrorResponseBody{
			Code:     model.ErrCodePersistenceFailed,
			Message:  "データの保存または読み取りに失敗しました。",
			Category: "persistence",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}

	return http.StatusInternalServerError, ErrorResponseBody{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, ErrorResponseBody{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
