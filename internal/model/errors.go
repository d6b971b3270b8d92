// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, configuration, upstream, schema, persistence, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeTokenNotConfigured = "TOKEN_NOT_CONFIGURED"
	ErrCodeInvalidToken       = "INVALID_API_TOKEN"
	ErrCodeUpstreamRejected   = "UPSTREAM_REJECTED"
	ErrCodeUpstreamFailed     = "UPSTREAM_FAILED"
	ErrCodeSchemaMismatch     = "SCHEMA_MISMATCH"
	ErrCodePersistenceFailed  = "PERSISTENCE_FAILED"
)

// AuthenticationError はセッショントークンの検証失敗を表す。
// 無効・期限切れ・アイデンティティホスト到達不能のいずれも本エラーになる。
// リトライは行わず、リクエストを即座に中断する。
type AuthenticationError struct {
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("認証に失敗しました: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("認証に失敗しました: %s", e.Reason)
}

// Unwrap はラップされたエラーを返す。
func (e *AuthenticationError) Unwrap() error { return e.Err }

// NewAuthenticationError はAuthenticationErrorを生成する。
func NewAuthenticationError(reason string, err error) *AuthenticationError {
	return &AuthenticationError{Reason: reason, Err: err}
}

// FieldViolation は入力値の単一フィールド違反を表す。
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError は入力検証の失敗を表す。
// フィールド単位の違反リストを保持し、呼び出し元が表示に利用する。
// 副作用のある呼び出しより論理的に前に発生することを保証する。
type ValidationError struct {
	Violations []FieldViolation
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "入力値の検証に失敗しました"
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return "入力値の検証に失敗しました: " + strings.Join(msgs, "; ")
}

// NewValidationError は単一フィールド違反のValidationErrorを生成する。
func NewValidationError(field, rule, message string) *ValidationError {
	return &ValidationError{Violations: []FieldViolation{{Field: field, Rule: rule, Message: message}}}
}

// ConfigurationError は解決可能な資格情報が存在しないことを表す。
// 「トークンを設定してください」という対処可能なエラー。
type ConfigurationError struct {
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ConfigurationError) Error() string { return e.Message }

// NewTokenNotConfiguredError はAPIトークン未設定エラーを生成する。
func NewTokenNotConfiguredError() *ConfigurationError {
	return &ConfigurationError{
		Message: "Hetzner APIトークンが設定されていません。設定画面でトークンを登録するか、HETZNER_API_TOKEN環境変数を設定してください。",
	}
}

// UpstreamError はHetzner APIが非成功ステータスを返したことを表す。
// 上流のエラーコード・メッセージを診断のためそのまま保持する。
type UpstreamError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Hetzner APIがエラーを返しました (HTTP %d, %s): %s", e.StatusCode, e.Code, e.Message)
}

// Retryable は再試行に意味があるエラーかどうかを返す。
// 5xxは一時的な上流障害としてリトライ可能、4xxは入力を変えない限り無意味。
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode >= 500
}

// SchemaError は上流レスポンスが期待スキーマに一致しなかったことを表す。
// 上流契約のドリフト検知シグナルとして扱い、プロセスを落とさず一般障害として表面化する。
type SchemaError struct {
	Operation string
	Err       error
}

// Error はerrorインターフェースを実装する。
func (e *SchemaError) Error() string {
	return fmt.Sprintf("Hetzner APIレスポンスのスキーマ検証に失敗しました (%s): %v", e.Operation, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *SchemaError) Unwrap() error { return e.Err }

// PersistenceError はローカルストア操作の失敗を表す。
// 読み取り経路ではリクエストを失敗させる。サーバー削除のクリーンアップ経路のみ
// ログに記録して握りつぶす（上流の削除成功が正）。
type PersistenceError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("永続化操作に失敗しました (%s): %v", e.Op, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError はPersistenceErrorを生成する。
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// IsRetryable はエラーが再試行に値するかどうかを判定する。
// 上流の5xxと到達不能（型不明のネットワーク起因）が対象。
// 検証・設定・スキーマ・4xxは入力を変えない限りリトライ無意味。
func IsRetryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	var se *SchemaError
	if errors.As(err, &se) {
		return false
	}
	var ae *AuthenticationError
	var ve *ValidationError
	var ce *ConfigurationError
	var pe *PersistenceError
	if errors.As(err, &ae) || errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &pe) {
		return false
	}
	return true
}
