package model

// Identity は検証済みのテナント/ユーザー/セッションコンテキストを表す。
// Session Verifierがセッショントークンから生成し、1リクエストの間イミュータブル。
// それ自体は永続化せず、ローカル永続化のスコープキーとしてのみ使用する。
// ExtensionInstanceIDがテナンシー境界であり、これを跨ぐ読み書きは一切許可しない。
type Identity struct {
	ExtensionInstanceID string
	ExtensionID         string
	UserID              string
	ContextID           string
	ProjectID           string // 省略可能
}
