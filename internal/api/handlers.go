package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"schwab-invest-bot/internal/audit"
	"schwab-invest-bot/internal/auth"
	"schwab-invest-bot/internal/schwab"
	"schwab-invest-bot/internal/validate"
)

// rejectInvalid writes a 400 for a failed validation and reports whether it
// did. Every externally supplied trading parameter passes through the
// validation layer here before it reaches an engine.
func rejectInvalid(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	return true
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	token, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleGetBalances(c *gin.Context) {
	balances, err := s.client.GetBalances(c.Request.Context())
	if err != nil {
		s.gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, balances)
}

func (s *Server) handleGetPositions(c *gin.Context) {
	positions, err := s.client.GetPositions(c.Request.Context())
	if err != nil {
		s.gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handleGetQuotes(c *gin.Context) {
	raw := c.Query("symbols")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols query parameter required"})
		return
	}

	symbols, err := validate.Symbols(strings.Split(raw, ","))
	if rejectInvalid(c, err) {
		return
	}

	quotes, err := s.client.GetQuotes(c.Request.Context(), symbols)
	if err != nil {
		s.gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

// effectiveDryRun forces a dry run unless the caller explicitly confirmed
// live execution.
func effectiveDryRun(dryRun, confirm bool) bool {
	return dryRun || !confirm
}

type dcaRequest struct {
	Symbols []string `json:"symbols" binding:"required"`
	Amount  float64  `json:"amount" binding:"required"`
	DryRun  bool     `json:"dry_run"`
	Confirm bool     `json:"confirm"`
}

func (s *Server) handleRunDCA(c *gin.Context) {
	var req dcaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols and amount required"})
		return
	}
	symbols, err := validate.Symbols(req.Symbols)
	if rejectInvalid(c, err) {
		return
	}
	amount, err := validate.Amount(req.Amount)
	if rejectInvalid(c, err) {
		return
	}

	results := s.strategies.DCA.Execute(c.Request.Context(), symbols, amount, effectiveDryRun(req.DryRun, req.Confirm))
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type dripRequest struct {
	DryRun  bool `json:"dry_run"`
	Confirm bool `json:"confirm"`
}

func (s *Server) handleRunDRIP(c *gin.Context) {
	var req dripRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	results, err := s.strategies.DRIP.Execute(c.Request.Context(), effectiveDryRun(req.DryRun, req.Confirm))
	if err != nil {
		s.gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type rebalanceRequest struct {
	Target    map[string]float64 `json:"target" binding:"required"`
	Threshold float64            `json:"threshold"`
	DryRun    bool               `json:"dry_run"`
	Confirm   bool               `json:"confirm"`
}

func (s *Server) handleRunRebalance(c *gin.Context) {
	var req rebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target allocation required"})
		return
	}

	target, err := validate.Allocation(req.Target, true)
	if rejectInvalid(c, err) {
		return
	}
	threshold, err := validate.Threshold(req.Threshold)
	if rejectInvalid(c, err) {
		return
	}

	results, err := s.strategies.Rebalance.Execute(c.Request.Context(), target, threshold, effectiveDryRun(req.DryRun, req.Confirm))
	if err != nil {
		s.gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handlePreviewRebalance(c *gin.Context) {
	var req rebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target allocation required"})
		return
	}

	target, err := validate.Allocation(req.Target, true)
	if rejectInvalid(c, err) {
		return
	}
	threshold, err := validate.Threshold(req.Threshold)
	if rejectInvalid(c, err) {
		return
	}

	actions, err := s.strategies.Rebalance.Plan(c.Request.Context(), target, threshold)
	if err != nil {
		s.gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

type opportunisticRequest struct {
	Watchlist    []string `json:"watchlist" binding:"required"`
	DipThreshold float64  `json:"dip_threshold"`
	BuyAmount    float64  `json:"buy_amount" binding:"required"`
	DryRun       bool     `json:"dry_run"`
	Confirm      bool     `json:"confirm"`
}

func (s *Server) handleRunOpportunistic(c *gin.Context) {
	var req opportunisticRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "watchlist and buy_amount required"})
		return
	}

	watchlist, err := validate.Symbols(req.Watchlist)
	if rejectInvalid(c, err) {
		return
	}
	dipThreshold, err := validate.Threshold(req.DipThreshold)
	if rejectInvalid(c, err) {
		return
	}
	buyAmount, err := validate.Amount(req.BuyAmount)
	if rejectInvalid(c, err) {
		return
	}

	results := s.strategies.Opportunistic.Execute(c.Request.Context(), watchlist, dipThreshold, buyAmount, effectiveDryRun(req.DryRun, req.Confirm))
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type optionsRequest struct {
	Symbols      []string `json:"symbols"`
	DaysToExpiry int      `json:"days_to_expiry"`
	OTMPercent   float64  `json:"otm_percent"`
	DryRun       bool     `json:"dry_run"`
	Confirm      bool     `json:"confirm"`
}

func (req *optionsRequest) applyDefaults() {
	if req.DaysToExpiry <= 0 {
		req.DaysToExpiry = 30
	}
	if req.OTMPercent <= 0 {
		req.OTMPercent = 0.05
	}
}

// bindOptions parses and validates an option hedge request. An empty body is
// allowed; it means all eligible positions with default parameters.
func bindOptions(c *gin.Context) (*optionsRequest, bool) {
	var req optionsRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return nil, false
	}
	req.applyDefaults()

	if len(req.Symbols) > 0 {
		symbols, err := validate.Symbols(req.Symbols)
		if rejectInvalid(c, err) {
			return nil, false
		}
		req.Symbols = symbols
	}
	if _, err := validate.ThresholdRange(req.OTMPercent, 0.001, 0.5, "otm_percent"); rejectInvalid(c, err) {
		return nil, false
	}
	if req.DaysToExpiry > 365 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days_to_expiry must be 365 or fewer"})
		return nil, false
	}
	return &req, true
}

func (s *Server) handleSellCoveredCalls(c *gin.Context) {
	req, ok := bindOptions(c)
	if !ok {
		return
	}

	results, err := s.strategies.Options.SellCoveredCalls(c.Request.Context(), req.Symbols, req.DaysToExpiry, req.OTMPercent, effectiveDryRun(req.DryRun, req.Confirm))
	if err != nil {
		s.gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleBuyProtectivePuts(c *gin.Context) {
	req, ok := bindOptions(c)
	if !ok {
		return
	}

	results, err := s.strategies.Options.BuyProtectivePuts(c.Request.Context(), req.Symbols, req.DaysToExpiry, req.OTMPercent, effectiveDryRun(req.DryRun, req.Confirm))
	if err != nil {
		s.gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleGetOrders(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database disabled"})
		return
	}

	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	if symbol := c.Query("symbol"); symbol != "" {
		orders, err := s.repo.OrdersBySymbol(c.Request.Context(), strings.ToUpper(symbol), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
		return
	}

	orders, err := s.repo.RecentOrders(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) handleGetStrategyRuns(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database disabled"})
		return
	}

	runs, err := s.repo.RecentStrategyRuns(c.Request.Context(), intQuery(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// handleGetAuditTail returns the last N audit entries from the log file.
func (s *Server) handleGetAuditTail(c *gin.Context) {
	if s.config.AuditLogPath == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log disabled"})
		return
	}

	limit := intQuery(c, "limit", 100)

	f, err := os.Open(s.config.AuditLogPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"entries": []json.RawMessage{}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	entries := make([]json.RawMessage, 0, limit)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := make(json.RawMessage, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		entries = append(entries, line)
		if len(entries) > limit {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleVerifyAudit(c *gin.Context) {
	if s.config.AuditLogPath == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log disabled"})
		return
	}

	f, err := os.Open(s.config.AuditLogPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"valid": true, "entries": 0})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	count, err := audit.VerifyChain(f)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "entries": count, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "entries": count})
}

// gatewayError maps broker failures to 502 and everything else to 500.
func (s *Server) gatewayError(c *gin.Context, err error) {
	var gwErr *schwab.GatewayError
	if errors.As(err, &gwErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
