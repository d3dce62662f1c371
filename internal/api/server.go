// Package api exposes the chat-bot command table (spec.md §6) as a
// thin inbound HTTP surface: one route per command, guarded by a
// single-operator bearer token. Grounded on the teacher's
// internal/api/server.go Server/ServerConfig/gin.Engine shape and its
// BotAPI indirection (the handlers never reach into the bot's
// internals directly, only through a narrow interface), but stripped
// of everything that assumes more than one operator — no per-user
// auth service, no rate limiter keyed by account, no websocket
// broadcast registry.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"btc-advisor-bot/internal/logging"
	"btc-advisor-bot/internal/model"
)

// StatusSnapshot is the /status read model.
type StatusSnapshot struct {
	Price float64 `json:"price"`
	RSI14 float64 `json:"rsi_14"`
	MACD  float64 `json:"macd"`
	Trend string  `json:"trend"`
}

// Core is the set of operations the HTTP surface drives. main.go
// implements it by wiring together the exchange client, marketdata
// adapter, analysis store, clock scheduler, and executor — api itself
// never imports any of those packages, only this interface.
type Core interface {
	Status(ctx context.Context) (StatusSnapshot, error)
	Balance(ctx context.Context) (string, error)
	Position(ctx context.Context) (model.Position, error)
	Price(ctx context.Context) (string, error)
	TriggerAnalyze(ctx context.Context, tf model.Timeframe) (bool, error)
	Last(ctx context.Context, tf model.Timeframe) (*model.Analysis, error)
	Trade(ctx context.Context) (model.TradeRecord, error)
	Stop(ctx context.Context) error
}

// Server is the gin-backed HTTP surface.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	core       Core
	jwt        *TokenManager
	passwords  *passwordManager
	adminHash  string
	log        *logging.Logger
}

// Config configures Server.
type Config struct {
	ListenAddr        string
	BearerToken       string // HMAC signing secret for the operator's JWT
	AdminPasswordHash string // bcrypt hash checked by POST /login; empty disables it
}

// New builds a Server over core, guarded by a JWT bearer token signed
// with cfg.BearerToken.
func New(cfg Config, core Core) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		core:      core,
		jwt:       NewTokenManager(cfg.BearerToken),
		passwords: newPasswordManager(),
		adminHash: cfg.AdminPasswordHash,
		log:       logging.WithComponent("api"),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.setupRoutes()
	return s
}

// OperatorToken mints the single operator bearer token, valid for 24h.
// cmd/bot uses this as a bootstrap fallback at startup when no admin
// password hash is configured for POST /login.
func (s *Server) OperatorToken() (string, error) {
	return s.jwt.Issue(24 * time.Hour)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	s.router.POST("/login", s.handleLogin)

	guarded := s.router.Group("/")
	guarded.Use(s.authMiddleware())
	guarded.GET("/status", s.handleStatus)
	guarded.GET("/balance", s.handleBalance)
	guarded.GET("/position", s.handlePosition)
	guarded.GET("/price", s.handlePrice)
	guarded.POST("/analyze/:tf", s.handleAnalyze)
	guarded.GET("/last", s.handleLast)
	guarded.GET("/last/:tf", s.handleLast)
	guarded.POST("/trade", s.handleTrade)
	guarded.POST("/stop", s.handleStop)
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" || !s.jwt.Validate(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
			return
		}
		c.Next()
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

// handleLogin exchanges the operator's admin password for a fresh
// bearer token. Disabled (always 404) when no admin password hash is
// configured — the static cfg.BearerToken-signed token minted at
// startup remains the only way in for that deployment mode.
func (s *Server) handleLogin(c *gin.Context) {
	if s.adminHash == "" {
		c.Status(http.StatusNotFound)
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !s.passwords.verify(req.Password, s.adminHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}
	token, err := s.jwt.Issue(24 * time.Hour)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func (s *Server) handleStatus(c *gin.Context) {
	snap, err := s.core.Status(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleBalance(c *gin.Context) {
	bal, err := s.core.Balance(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal})
}

func (s *Server) handlePosition(c *gin.Context) {
	pos, err := s.core.Position(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) handlePrice(c *gin.Context) {
	price, err := s.core.Price(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"price": price})
}

// handleAnalyze is the /analyze <tf> command: a manual trigger that
// bypasses the scheduler's min-interval, never places an order
// (spec.md §6).
func (s *Server) handleAnalyze(c *gin.Context) {
	tf := model.Timeframe(c.Param("tf"))
	fired, err := s.core.TriggerAnalyze(c.Request.Context(), tf)
	if err != nil {
		respondErr(c, err)
		return
	}
	if !fired {
		c.JSON(http.StatusConflict, gin.H{"fired": false, "reason": "analysis already in flight for this timeframe"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"fired": true})
}

func (s *Server) handleLast(c *gin.Context) {
	tf := model.Timeframe(c.Param("tf"))
	if tf == "" {
		tf = model.TimeframeFinal
	}
	analysis, err := s.core.Last(c.Request.Context(), tf)
	if err != nil {
		respondErr(c, err)
		return
	}
	if analysis == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis recorded for timeframe " + string(tf)})
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// handleTrade is the /trade command: runs the final pipeline and
// executes if admissible (spec.md §6). The command acknowledgement
// itself goes back over this response; the admin notifier channel
// separately receives the lifecycle events C4–C7 publish.
func (s *Server) handleTrade(c *gin.Context) {
	record, err := s.core.Trade(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleStop(c *gin.Context) {
	if err := s.core.Stop(c.Request.Context()); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"stopping": true})
}

func respondErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("starting HTTP command surface", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
