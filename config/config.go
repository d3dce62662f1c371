// Package config loads the bot's flat JSON configuration file and
// applies environment-variable overrides on top, the same two-stage
// pattern the teacher's config package uses.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full configuration tree for one run of the bot.
type Config struct {
	Bot          BotConfig          `json:"bot"`
	Logging      LoggingConfig      `json:"logging"`
	Exchange     ExchangeConfig     `json:"exchange"`
	Advisor      AdvisorConfig      `json:"advisor"`
	Vault        VaultConfig        `json:"vault"`
	API          APIConfig          `json:"api"`
	Notification NotificationConfig `json:"notification"`
}

// BotConfig holds the trading-domain parameters from spec.md §6.
type BotConfig struct {
	Symbol             string    `json:"symbol"`
	Timezone           string    `json:"timezone"`
	MinConfidence      float64   `json:"min_confidence"`
	MinTrendStrength   float64   `json:"min_trend_strength"`
	MaxDailyTrades     int       `json:"max_daily_trades"`
	CooldownMinutes    int       `json:"cooldown_minutes"`
	MaxLossPct         float64   `json:"max_loss_pct"`
	ProfitTargets      []float64 `json:"profit_targets"`
	LeverageCapsByRisk RiskCaps  `json:"leverage_caps_by_risk"`
	PositionCapsByRisk RiskCaps  `json:"position_caps_by_risk"`
	StepSize           float64   `json:"step_size"`
	MinNotional        float64   `json:"min_notional"`
	AutoTradingEnabled bool      `json:"auto_trading_enabled"`
	DataDir            string    `json:"data_dir"`
}

// RiskCaps tiers a numeric cap (leverage, position size pct, ...) by the
// advisor's reported risk_level.
type RiskCaps struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
	Low    float64 `json:"low"`
}

// LoggingConfig mirrors internal/logging.Config's JSON shape.
type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	Component   string `json:"component"`
	IncludeFile bool   `json:"include_file"`
	JSONFormat  bool   `json:"json_format"`
}

// ExchangeConfig configures the Binance USDT-M Futures adapter.
type ExchangeConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	Testnet   bool   `json:"testnet"`
}

// AdvisorConfig configures the LLM advisor gateway transport.
type AdvisorConfig struct {
	Provider    string        `json:"provider"` // "claude", "openai", "deepseek"
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// VaultConfig enables resolving API key material from HashiCorp Vault
// instead of the flat config file.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// APIConfig configures the single-operator admin HTTP surface.
type APIConfig struct {
	Enabled           bool   `json:"enabled"`
	ListenAddr        string `json:"listen_addr"`
	BearerToken       string `json:"bearer_token"`
	AdminPasswordHash string `json:"admin_password_hash"` // bcrypt hash; "/login" issues a token on match
}

// NotificationConfig lists the chat channels the notifier fans out to.
type NotificationConfig struct {
	Channels []ChannelConfig `json:"channels"`
}

// ChannelConfig is one notification channel entry (spec.md §4.8).
type ChannelConfig struct {
	Name             string `json:"name"`
	Role             string `json:"role"` // "admin" or "notify_only"
	Kind             string `json:"kind"` // "telegram", "discord", "websocket"
	BotToken         string `json:"bot_token,omitempty"`
	ChatID           string `json:"chat_id,omitempty"`
	WebhookURL       string `json:"webhook_url,omitempty"`
	RateLimitPerMin  int    `json:"rate_limit_per_min"`
}

const defaultConfigFile = "config.json"

// Load reads the JSON config file (if present) then applies environment
// overrides, matching the teacher's Load().
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	cfg, err := loadFromFile(path)
	if err != nil {
		cfg = defaults()
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Bot: BotConfig{
			Symbol:             "BTCUSDT",
			Timezone:           "Asia/Seoul",
			MinConfidence:      70,
			MinTrendStrength:   60,
			MaxDailyTrades:     3,
			CooldownMinutes:    60,
			MaxLossPct:         2,
			StepSize:           0.001,
			MinNotional:        1,
			DataDir:            "./data",
			LeverageCapsByRisk: RiskCaps{High: 10, Medium: 5, Low: 3},
			PositionCapsByRisk: RiskCaps{High: 30, Medium: 20, Low: 15},
		},
		Logging: LoggingConfig{Level: "INFO", Output: "stdout", Component: "tradingbot", JSONFormat: true},
		Exchange: ExchangeConfig{
			BaseURL: "https://fapi.binance.com",
		},
		Advisor: AdvisorConfig{
			Provider:    "claude",
			Model:       "claude-3-5-sonnet-20241022",
			MaxTokens:   2048,
			Temperature: 0.2,
			Timeout:     30 * time.Second,
		},
		API: APIConfig{ListenAddr: ":8090"},
	}
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Bot.Symbol = getEnvOrDefault("BOT_SYMBOL", cfg.Bot.Symbol)
	cfg.Bot.Timezone = getEnvOrDefault("BOT_TIMEZONE", cfg.Bot.Timezone)
	cfg.Bot.AutoTradingEnabled = getEnvOrDefault("BOT_AUTO_TRADING_ENABLED", boolStr(cfg.Bot.AutoTradingEnabled)) == "true"
	cfg.Bot.MaxDailyTrades = getEnvIntOrDefault("BOT_MAX_DAILY_TRADES", cfg.Bot.MaxDailyTrades)
	cfg.Bot.CooldownMinutes = getEnvIntOrDefault("BOT_COOLDOWN_MINUTES", cfg.Bot.CooldownMinutes)
	cfg.Bot.DataDir = getEnvOrDefault("BOT_DATA_DIR", cfg.Bot.DataDir)

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.JSONFormat = getEnvOrDefault("LOG_JSON", boolStr(cfg.Logging.JSONFormat)) == "true"

	cfg.Exchange.APIKey = getEnvOrDefault("EXCHANGE_API_KEY", cfg.Exchange.APIKey)
	cfg.Exchange.SecretKey = getEnvOrDefault("EXCHANGE_SECRET_KEY", cfg.Exchange.SecretKey)
	cfg.Exchange.BaseURL = getEnvOrDefault("EXCHANGE_BASE_URL", cfg.Exchange.BaseURL)
	cfg.Exchange.Testnet = getEnvOrDefault("EXCHANGE_TESTNET", boolStr(cfg.Exchange.Testnet)) == "true"

	cfg.Advisor.Provider = getEnvOrDefault("ADVISOR_PROVIDER", cfg.Advisor.Provider)
	cfg.Advisor.APIKey = getEnvOrDefault("ADVISOR_API_KEY", cfg.Advisor.APIKey)
	cfg.Advisor.Model = getEnvOrDefault("ADVISOR_MODEL", cfg.Advisor.Model)

	cfg.Vault.Enabled = getEnvOrDefault("VAULT_ENABLED", boolStr(cfg.Vault.Enabled)) == "true"
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.Vault.MountPath)
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.Vault.SecretPath)

	cfg.API.Enabled = getEnvOrDefault("API_ENABLED", boolStr(cfg.API.Enabled)) == "true"
	cfg.API.ListenAddr = getEnvOrDefault("API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.BearerToken = getEnvOrDefault("API_BEARER_TOKEN", cfg.API.BearerToken)
	cfg.API.AdminPasswordHash = getEnvOrDefault("API_ADMIN_PASSWORD_HASH", cfg.API.AdminPasswordHash)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// RiskCapFor returns the cap for the given risk level from a RiskCaps
// tier. "high" and any unrecognized value fall through to the High
// field; model.RiskLevel.Valid() rejects anything else upstream.
func (r RiskCaps) RiskCapFor(level string) float64 {
	switch level {
	case "low":
		return r.Low
	case "medium":
		return r.Medium
	default:
		return r.High
	}
}
