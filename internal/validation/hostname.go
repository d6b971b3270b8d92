package validation

import (
	"regexp"
	"strings"

	"github.com/hitoshi/hcadmin/internal/model"
)

// maxServerNameLength はサーバー名の最大長（RFC 1123のラベル上限に揃える）。
const maxServerNameLength = 63

// hostnamePattern はRFC 1123準拠のホスト名文法。
var hostnamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)

// NormalizeServerName はサーバー名をホスト名文法へ正規化する。
// 小文字化 → 不正文字をハイフンへ置換 → 連続する区切り文字を圧縮 →
// ラベルごとに先頭末尾の非英数字を除去 → 文法で再検証、という手順を踏む。
// 既に文法に適合する名前に対しては恒等（冪等）。
// 正規化後も文法に適合しない場合はValidationErrorを返す。
func NormalizeServerName(name string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(name))

	// 不正文字（英数字・ハイフン・ドット以外）をハイフンへ置換
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	s = b.String()

	// ラベルごとに連続ハイフンを圧縮し、先頭末尾の非英数字を除去する。
	// 空になったラベルを落とすことで連続ドットも圧縮される。
	labels := strings.Split(s, ".")
	normalized := make([]string, 0, len(labels))
	for _, label := range labels {
		label = collapseHyphens(label)
		label = strings.Trim(label, "-")
		if label != "" {
			normalized = append(normalized, label)
		}
	}
	s = strings.Join(normalized, ".")

	if s == "" {
		return "", model.NewValidationError("name", "hostname", "正規化後のサーバー名が空になりました")
	}
	if len(s) > maxServerNameLength {
		return "", model.NewValidationError("name", "max", "サーバー名は63文字以内で指定してください")
	}
	if !hostnamePattern.MatchString(s) {
		return "", model.NewValidationError("name", "hostname", "有効なホスト名（RFC 1123）を指定してください")
	}
	return s, nil
}

// collapseHyphens は連続するハイフンを1つへ圧縮する。
func collapseHyphens(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevHyphen := false
	for _, r := range s {
		if r == '-' {
			if prevHyphen {
				continue
			}
			prevHyphen = true
		} else {
			prevHyphen = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
