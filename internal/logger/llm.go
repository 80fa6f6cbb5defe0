package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	llmMu          sync.Mutex
	llmLog         *log.Logger
	llmDumpPayload bool
)

// SetLLMWriter 指定 LLM 请求/响应落盘的目标；传 nil 关闭。
func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

func EnableLLMPayloadDump(on bool) {
	llmMu.Lock()
	llmDumpPayload = on
	llmMu.Unlock()
}

// DumpLLM 按用途记录一次完整的 prompt/completion 往返。
// 仅在 llm_dump_payload 打开且配置了 writer 时生效。
func DumpLLM(purpose, model, prompt, completion string) {
	llmMu.Lock()
	logger := llmLog
	enabled := llmDumpPayload
	llmMu.Unlock()
	if logger == nil || !enabled {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM]")
	if purpose != "" {
		b.WriteString("[")
		b.WriteString(purpose)
		b.WriteString("]")
	}
	if model != "" {
		b.WriteString("[")
		b.WriteString(model)
		b.WriteString("]")
	}
	b.WriteString("\n----- PROMPT -----\n")
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString("\n----- COMPLETION -----\n")
	b.WriteString(strings.TrimSpace(completion))
	b.WriteString("\n")
	logger.Print(b.String())
}
