package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NoteSanitizer はリソースメモの自由記述テキストをサニタイズする。
// メモはプレーンテキストとして扱うため、StrictPolicyで全HTMLを除去する。
type NoteSanitizer struct {
	policy *bluemonday.Policy
}

// NewNoteSanitizer はNoteSanitizerを生成する。
func NewNoteSanitizer() *NoteSanitizer {
	return &NoteSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はメモ本文から全HTMLタグを除去し、前後の空白をトリムして返す。
// 同一入力に対して常に同一出力を返す（冪等）。
func (s *NoteSanitizer) Sanitize(note string) string {
	return strings.TrimSpace(s.policy.Sanitize(note))
}
