package parser

import (
	"strings"

	"ordermind/internal/refdata"
)

// MinAutocompleteChars 以下的前缀不给补全,避免整表刷屏。
const MinAutocompleteChars = 2

// Autocomplete 按前缀匹配 symbol 或公司名。前缀不足两个字符返回空。
func Autocomplete(table *refdata.Table, prefix string) []refdata.Security {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < MinAutocompleteChars {
		return nil
	}
	upper := strings.ToUpper(prefix)
	lower := strings.ToLower(prefix)

	var out []refdata.Security
	for _, sec := range table.Securities() {
		if strings.HasPrefix(sec.Symbol, upper) ||
			strings.HasPrefix(strings.ToLower(sec.Name), lower) {
			out = append(out, sec)
		}
	}
	return out
}
