package repository

import "strings"

// likeEscaper はLIKEのワイルドカード文字をエスケープする。
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern は部分一致検索用のLIKEパターンを生成する。
// エスケープ文字はバックスラッシュ。
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}
