package upstream

import (
	"encoding/json"
	"sort"
	"strings"
)

// CacheKey 由 URL 和按 key 排序的参数生成稳定的缓存键：
// extjson::<url>::[["a","1"],["b","2"]]
func CacheKey(url string, params map[string]string) string {
	return "extjson::" + url + "::" + SortedParams(params)
}

// SortedParams 把参数编码为按 key 排序的 [key,value] JSON 数组，空参数为 []
func SortedParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, params[k]})
	}

	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	// [][2]string 编码不会失败
	_ = enc.Encode(pairs)
	return strings.TrimSuffix(b.String(), "\n")
}
