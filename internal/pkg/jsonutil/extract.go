// Package jsonutil 从 LLM 补全文本中提取 JSON。
// 模型经常把 JSON 包在 markdown 代码栏（```json ... ```）里，
// 这里统一处理：先剥栏，再做括号配平扫描，失败返回 ok=false，
// 由调用方走确定性回退路径。
package jsonutil

import (
	"strings"
)

const codeFence = "```"

// ExtractObject 返回文本中第一个完整的 JSON 对象。
// 支持可选的前后三反引号代码栏及栏后的语言标记（如 json）。
func ExtractObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if body, ok := stripFence(raw); ok {
		raw = body
	}
	return scanObject(raw)
}

// stripFence 取第一对代码栏之间的内容；没有成对的栏则原样返回。
func stripFence(raw string) (string, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	// 栏后第一行若是语言标记（json、JSON 等）则丢弃
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "{[") {
			block = block[idx+1:]
		}
	}
	block = strings.TrimSpace(block)
	if block == "" {
		return "", false
	}
	return block, true
}

func scanObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(raw[start : i+1]), true
			}
		}
	}
	return "", false
}
