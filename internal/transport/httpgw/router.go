package httpgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ordermind/internal/correction"
	"ordermind/internal/learning"
	"ordermind/internal/logger"
	"ordermind/internal/parser"
	"ordermind/internal/refdata"
	"ordermind/internal/strategy"
)

// Recommender 是推荐入口的最小能力面。
type Recommender interface {
	Suggest(ctx context.Context, order strategy.Order) strategy.Suggestion
}

// RewardSink 回填 rollout 奖励。trace 关闭时为 nil。
type RewardSink interface {
	RecordAccepted(ctx context.Context, rolloutID string) error
	RecordCorrected(ctx context.Context, rolloutID string) error
	ReadyForTraining(ctx context.Context) (bool, int64, error)
}

// Router 暴露订单解析、策略建议与学习管理接口。
type Router struct {
	Recommender Recommender
	Parser      *parser.OrderParser
	Corrections *correction.Store
	Learning    *learning.Service
	Rewards     RewardSink
	Table       *refdata.Table
}

// Register 把全部 /api 路由挂到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/health", r.handleHealth)

	group.POST("/parse-order", r.handleParseOrder)
	group.POST("/parse-trader-text", r.handleParseTraderText)
	group.POST("/smart-suggestion", r.handleSmartSuggestion)
	group.GET("/autocomplete", r.handleAutocomplete)
	group.GET("/securities", r.handleSecurities)
	group.GET("/securities/:symbol", r.handleSecurityDetail)

	group.POST("/capture-correction", r.handleCaptureCorrection)
	group.POST("/correction/strategy", r.handleQuickCorrection)
	group.POST("/suggestion/accept", r.handleSuggestionAccepted)

	if r.Learning != nil {
		lg := group.Group("/learning")
		lg.POST("/analyze", r.handleAnalyze)
		lg.POST("/train", r.handleTrain)
		lg.POST("/deploy", r.handleDeploy)
		lg.POST("/rollback", r.handleRollback)
		lg.GET("/versions", r.handleVersions)
		lg.GET("/status", r.handleStatus)
	}
}

func (r *Router) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type textRequest struct {
	Text string `json:"text" binding:"required"`
}

func (r *Router) handleParseOrder(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r.Parser.Parse(c.Request.Context(), req.Text))
}

func (r *Router) handleParseTraderText(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r.Parser.InterpretTraderText(c.Request.Context(), req.Text))
}

type suggestionRequest struct {
	Security    string  `json:"security" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"required,gt=0"`
	Side        string  `json:"side"`
	TimeInForce string  `json:"time_in_force"`
}

func (r *Router) handleSmartSuggestion(c *gin.Context) {
	var req suggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tif := req.TimeInForce
	if tif == "" {
		tif = "DAY"
	}
	sug := r.Recommender.Suggest(c.Request.Context(), strategy.Order{
		Security:    req.Security,
		Quantity:    req.Quantity,
		Side:        strings.ToUpper(req.Side),
		TimeInForce: strings.ToUpper(tif),
	})
	c.JSON(http.StatusOK, sug)
}

func (r *Router) handleAutocomplete(c *gin.Context) {
	prefix := c.Query("prefix")
	if prefix == "" {
		prefix = c.Query("q")
	}
	matches := parser.Autocomplete(r.Table, prefix)
	if matches == nil {
		matches = []refdata.Security{}
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (r *Router) handleSecurities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"securities": r.Table.Securities()})
}

func (r *Router) handleSecurityDetail(c *gin.Context) {
	symbol := c.Param("symbol")
	sec, ok := r.Table.Security(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown security %s", strings.ToUpper(symbol))})
		return
	}
	mctx := r.Table.MarketContext(symbol)
	c.JSON(http.StatusOK, gin.H{"security": sec, "market": mctx})
}

type captureRequest struct {
	InteractionID  string          `json:"interaction_id"`
	InputData      json.RawMessage `json:"input_data" binding:"required"`
	AISuggestion   json.RawMessage `json:"ai_suggestion" binding:"required"`
	UserCorrection json.RawMessage `json:"user_correction" binding:"required"`
	TraceID        string          `json:"trace_id"`
}

func (r *Router) handleCaptureCorrection(c *gin.Context) {
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, path, err := r.captureCorrection(c.Request.Context(), correction.Record{
		InteractionID:  req.InteractionID,
		Input:          req.InputData,
		AISuggestion:   req.AISuggestion,
		UserCorrection: req.UserCorrection,
	}, req.TraceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"filepath": path,
		"message":  fmt.Sprintf("correction %s captured", saved.InteractionID),
	})
}

type quickCorrectionRequest struct {
	Security          string  `json:"security" binding:"required"`
	Quantity          float64 `json:"quantity"`
	Side              string  `json:"side"`
	TimeInForce       string  `json:"time_in_force"`
	SuggestedStrategy string  `json:"suggested_strategy" binding:"required"`
	CorrectedStrategy string  `json:"corrected_strategy" binding:"required"`
	Reason            string  `json:"reason"`
	TraceID           string  `json:"trace_id"`
}

// handleQuickCorrection 是扁平版纠正入口:不要求客户端拼完整记录结构。
func (r *Router) handleQuickCorrection(c *gin.Context) {
	var req quickCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input, _ := json.Marshal(map[string]any{
		"security":      strings.ToUpper(req.Security),
		"quantity":      req.Quantity,
		"side":          strings.ToUpper(req.Side),
		"time_in_force": strings.ToUpper(req.TimeInForce),
	})
	suggestion, _ := json.Marshal(map[string]string{"strategy": req.SuggestedStrategy})
	corrected := map[string]string{"strategy": req.CorrectedStrategy}
	if req.Reason != "" {
		corrected["reason"] = req.Reason
	}
	userCorrection, _ := json.Marshal(corrected)

	saved, path, err := r.captureCorrection(c.Request.Context(), correction.Record{
		Input:          input,
		AISuggestion:   suggestion,
		UserCorrection: userCorrection,
	}, req.TraceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"filepath": path,
		"message":  fmt.Sprintf("correction %s captured", saved.InteractionID),
	})
}

func (r *Router) captureCorrection(ctx context.Context, rec correction.Record, traceID string) (correction.Record, string, error) {
	if rec.Metadata.Version == "" && r.Learning != nil {
		rec.Metadata.Version = fmt.Sprintf("v%d", r.Learning.Policy().ActiveVersion())
	}
	saved, path, err := r.Corrections.Capture(rec)
	if err != nil {
		return saved, "", err
	}
	if traceID != "" && r.Rewards != nil {
		if rerr := r.Rewards.RecordCorrected(ctx, traceID); rerr != nil {
			logger.Warnf("[http] reward backfill for %s failed: %v", traceID, rerr)
		}
	}
	return saved, path, nil
}

type acceptRequest struct {
	TraceID string `json:"trace_id" binding:"required"`
}

func (r *Router) handleSuggestionAccepted(c *gin.Context) {
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if r.Rewards == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tracing disabled"})
		return
	}
	if err := r.Rewards.RecordAccepted(c.Request.Context(), req.TraceID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleAnalyze(c *gin.Context) {
	analysis, reportPath, err := r.Learning.Analyze(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": analysis, "report": reportPath})
}

func (r *Router) handleTrain(c *gin.Context) {
	res, err := r.Learning.Train(c.Request.Context())
	if err != nil {
		var need *learning.ErrNotEnoughCorrections
		if errors.As(err, &need) {
			c.JSON(http.StatusConflict, gin.H{"error": need.Error(), "have": need.Have, "need": need.Need})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

type deployRequest struct {
	Version int  `json:"version" binding:"required,gt=0"`
	DryRun  bool `json:"dry_run"`
}

func (r *Router) handleDeploy(c *gin.Context) {
	var req deployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := r.Learning.Policy().Deploy(req.Version, req.DryRun)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// version 可省略,省略时回滚到最近一次备份对应的版本。
type rollbackRequest struct {
	Version int `json:"version"`
}

func (r *Router) handleRollback(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := r.Learning.Policy().Rollback(req.Version)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleVersions(c *gin.Context) {
	store := r.Learning.Policy()
	versions := store.Versions()
	out := make([]gin.H, 0, len(versions))
	for _, v := range versions {
		item := gin.H{"version": v}
		if meta, err := store.LoadMetadata(v); err == nil {
			item["created"] = meta.Created
			item["correction_count"] = meta.CorrectionCount
		}
		out = append(out, item)
	}
	current, deployedAt := store.CurrentVersion()
	c.JSON(http.StatusOK, gin.H{
		"versions":    out,
		"current":     current,
		"deployed_at": deployedAt,
		"active":      store.ActiveVersion(),
	})
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := gin.H{"active_version": r.Learning.Policy().ActiveVersion()}
	if n, err := r.Corrections.Count(0); err == nil {
		resp["corrections_total"] = n
	}
	if r.Rewards != nil {
		if ready, n, err := r.Rewards.ReadyForTraining(c.Request.Context()); err == nil {
			resp["rewarded_spans"] = n
			resp["policy_training_ready"] = ready
		}
	}
	c.JSON(http.StatusOK, resp)
}
