// Package mcpsrv 以 MCP stdio 协议暴露订单助手工具。
// 协议走 stdout,所有日志必须进 stderr,进程入口负责重定向。
package mcpsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"ordermind/internal/correction"
	"ordermind/internal/logger"
	"ordermind/internal/parser"
	"ordermind/internal/refdata"
	"ordermind/internal/strategy"
)

// Recommender 同 HTTP 网关,MCP 侧复用一套推荐入口。
type Recommender interface {
	Suggest(ctx context.Context, order strategy.Order) strategy.Suggestion
}

// Deps 是 MCP 服务的依赖集合。
type Deps struct {
	Recommender Recommender
	Parser      *parser.OrderParser
	Corrections *correction.Store
	Table       *refdata.Table
	Version     string
}

// Server 封装 mcp-go 服务器与工具注册。
type Server struct {
	mcp  *server.MCPServer
	deps Deps
}

func New(deps Deps) *Server {
	version := deps.Version
	if version == "" {
		version = "1.0.0"
	}
	s := &Server{
		mcp:  server.NewMCPServer("ordermind", version),
		deps: deps,
	}
	s.registerTools()
	return s
}

// Serve 在 stdio 上阻塞运行,直到对端断开。
func (s *Server) Serve() error {
	logger.Infof("MCP stdio server started, waiting for client...")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("parse_order",
		mcp.WithDescription("把自然语言下单指令解析成结构化订单"),
		mcp.WithString("text", mcp.Required(), mcp.Description("交易员输入的原始文本")),
	), s.handleParseOrder)

	s.mcp.AddTool(mcp.NewTool("parse_trader_text",
		mcp.WithDescription("理解交易员自由文本:意图、订单要素与显式策略"),
		mcp.WithString("text", mcp.Required(), mcp.Description("交易员输入的原始文本")),
	), s.handleParseTraderText)

	s.mcp.AddTool(mcp.NewTool("smart_suggestion",
		mcp.WithDescription("为订单推荐执行策略与市场冲击风险"),
		mcp.WithString("security", mcp.Required(), mcp.Description("证券代码")),
		mcp.WithNumber("quantity", mcp.Required(), mcp.Description("订单数量(股数)")),
		mcp.WithString("side", mcp.Description("BUY 或 SELL")),
		mcp.WithString("time_in_force", mcp.Description("DAY/GTC/GTD/FOK,缺省 DAY")),
	), s.handleSmartSuggestion)

	s.mcp.AddTool(mcp.NewTool("autocomplete",
		mcp.WithDescription("按前缀补全证券代码或公司名,至少两个字符"),
		mcp.WithString("prefix", mcp.Required(), mcp.Description("输入前缀")),
	), s.handleAutocomplete)

	s.mcp.AddTool(mcp.NewTool("get_securities",
		mcp.WithDescription("列出全部已知证券"),
	), s.handleGetSecurities)

	s.mcp.AddTool(mcp.NewTool("get_security",
		mcp.WithDescription("查询单只证券的主数据与市场上下文"),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("证券代码")),
	), s.handleGetSecurity)

	s.mcp.AddTool(mcp.NewTool("capture_correction",
		mcp.WithDescription("记录交易员对策略建议的纠正"),
		mcp.WithString("interaction_id", mcp.Description("本次交互的标识,缺省自动生成")),
		mcp.WithString("security", mcp.Required(), mcp.Description("证券代码")),
		mcp.WithNumber("quantity", mcp.Description("订单数量")),
		mcp.WithString("suggested_strategy", mcp.Required(), mcp.Description("模型原本建议的策略")),
		mcp.WithString("corrected_strategy", mcp.Required(), mcp.Description("交易员改成的策略")),
		mcp.WithString("reason", mcp.Description("纠正原因,可选")),
	), s.handleCaptureCorrection)
}

func stringArg(request mcp.CallToolRequest, key string) string {
	v, _ := request.Params.Arguments[key].(string)
	return strings.TrimSpace(v)
}

func numberArg(request mcp.CallToolRequest, key string) float64 {
	v, _ := request.Params.Arguments[key].(float64)
	return v
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleParseOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := stringArg(request, "text")
	if text == "" {
		return mcp.NewToolResultText("error: text must be a non-empty string"), nil
	}
	return jsonResult(s.deps.Parser.Parse(ctx, text))
}

func (s *Server) handleParseTraderText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := stringArg(request, "text")
	if text == "" {
		return mcp.NewToolResultText("error: text must be a non-empty string"), nil
	}
	return jsonResult(s.deps.Parser.InterpretTraderText(ctx, text))
}

func (s *Server) handleSmartSuggestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	security := stringArg(request, "security")
	quantity := numberArg(request, "quantity")
	if security == "" || quantity <= 0 {
		return mcp.NewToolResultText("error: security and a positive quantity are required"), nil
	}
	tif := strings.ToUpper(stringArg(request, "time_in_force"))
	if tif == "" {
		tif = "DAY"
	}
	sug := s.deps.Recommender.Suggest(ctx, strategy.Order{
		Security:    security,
		Quantity:    quantity,
		Side:        strings.ToUpper(stringArg(request, "side")),
		TimeInForce: tif,
	})
	return jsonResult(sug)
}

func (s *Server) handleAutocomplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	matches := parser.Autocomplete(s.deps.Table, stringArg(request, "prefix"))
	if matches == nil {
		matches = []refdata.Security{}
	}
	return jsonResult(map[string]any{"matches": matches})
}

func (s *Server) handleGetSecurities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"securities": s.deps.Table.Securities()})
}

func (s *Server) handleGetSecurity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol := stringArg(request, "symbol")
	sec, ok := s.deps.Table.Security(symbol)
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("error: unknown security %s", strings.ToUpper(symbol))), nil
	}
	return jsonResult(map[string]any{
		"security": sec,
		"market":   s.deps.Table.MarketContext(symbol),
	})
}

func (s *Server) handleCaptureCorrection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	security := stringArg(request, "security")
	suggested := stringArg(request, "suggested_strategy")
	corrected := stringArg(request, "corrected_strategy")
	if security == "" || suggested == "" || corrected == "" {
		return mcp.NewToolResultText("error: security, suggested_strategy and corrected_strategy are required"), nil
	}
	input, _ := json.Marshal(map[string]any{
		"security": strings.ToUpper(security),
		"quantity": numberArg(request, "quantity"),
	})
	suggestion, _ := json.Marshal(map[string]string{"strategy": suggested})
	correctionBody := map[string]string{"strategy": corrected}
	if reason := stringArg(request, "reason"); reason != "" {
		correctionBody["reason"] = reason
	}
	userCorrection, _ := json.Marshal(correctionBody)

	saved, path, err := s.deps.Corrections.Capture(correction.Record{
		InteractionID:  stringArg(request, "interaction_id"),
		Input:          input,
		AISuggestion:   suggestion,
		UserCorrection: userCorrection,
	})
	if err != nil {
		logger.Errorf("[mcp] capture correction failed: %v", err)
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"success":  true,
		"filepath": path,
		"message":  fmt.Sprintf("correction %s captured", saved.InteractionID),
	})
}
