package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	asterUserENV      = "ASTER_USER"
	asterSignerENV    = "ASTER_SIGNER"
	asterKeyENV       = "ASTER_PRIVATE_KEY"
	advisoryKeyENV    = "ADVISORY_API_KEY"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
)

// Config ...
type Config struct {
	Exchange   Exchange   `yaml:"exchange"`
	Trading    Trading    `yaml:"trading"`
	Strategies Strategies `yaml:"strategies"`
	Manual     Manual     `yaml:"manual"`
	Advisory   Advisory   `yaml:"advisory"`
	Telegram   Telegram   `yaml:"telegram"`
	Tracing    Tracing    `yaml:"tracing"`
	Log        Log        `yaml:"log"`
	Health     Health     `yaml:"health"`
}

type Exchange struct {
	BaseURL    string        `yaml:"api_base_url"`
	User       string        `yaml:"user"`
	Signer     string        `yaml:"signer"`
	PrivateKey string        `yaml:"private_key"`
	RecvWindow int64         `yaml:"recv_window"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Trading struct {
	Symbols            []string `yaml:"symbols"`
	MaxLeverage        int      `yaml:"max_leverage"`
	MaxPositionPercent float64  `yaml:"max_position_percent"`
	MarginType         string   `yaml:"margin_type"` // ISOLATED | CROSSED
	StopLossPercent    float64  `yaml:"stop_loss_percent"`
	TakeProfitPercent  float64  `yaml:"take_profit_percent"`
}

type MAPeriods struct {
	SMAShort  int `yaml:"sma_short"`
	SMAMedium int `yaml:"sma_medium"`
	SMALong   int `yaml:"sma_long"`
	EMAShort  int `yaml:"ema_short"`
	EMAMedium int `yaml:"ema_medium"`
	EMALong   int `yaml:"ema_long"`
}

func (p MAPeriods) SMA() []int { return []int{p.SMAShort, p.SMAMedium, p.SMALong} }
func (p MAPeriods) EMA() []int { return []int{p.EMAShort, p.EMAMedium, p.EMALong} }

// Cadence — один частотный режим стратегии.
type Cadence struct {
	Enabled                     bool      `yaml:"enabled"`
	Interval                    string    `yaml:"interval"`
	CheckIntervalSeconds        int       `yaml:"check_interval_seconds"`
	MAPeriods                   MAPeriods `yaml:"ma_periods"`
	ConvergenceThresholdPercent float64   `yaml:"convergence_threshold_percent"`
	BreakoutConfirmationMinutes int       `yaml:"breakout_confirmation_minutes"`
}

func (c Cadence) Every() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

type Strategies struct {
	HighFrequency   Cadence `yaml:"high_frequency"`
	MediumFrequency Cadence `yaml:"medium_frequency"`
}

type Manual struct {
	Enabled                bool          `yaml:"enabled"`
	DefaultLeverage        int           `yaml:"default_leverage"`
	DefaultPositionPercent float64       `yaml:"default_position_percent"`
	CheckInterval          time.Duration `yaml:"check_interval"`
	OrderFile              string        `yaml:"order_file"`
	FilePollInterval       time.Duration `yaml:"file_poll_interval"`
	EnableFileWatch        bool          `yaml:"enable_file_watch"`
	APIHost                string        `yaml:"api_host"`
	APIPort                int           `yaml:"api_port"`
}

func (m Manual) Addr() string { return fmt.Sprintf("%s:%d", m.APIHost, m.APIPort) }

type Advisory struct {
	Provider         string        `yaml:"provider"` // deepseek | grok
	APIKey           string        `yaml:"api_key"`
	BaseURL          string        `yaml:"api_base_url"`
	Model            string        `yaml:"model"`
	Timeout          time.Duration `yaml:"timeout"`
	ConfirmThreshold int           `yaml:"confirm_threshold"`
}

func (a Advisory) Enabled() bool { return a.APIKey != "" }

type Telegram struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type Tracing struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type Health struct {
	Addr string `yaml:"addr"`
}

func defaultPeriods() MAPeriods {
	return MAPeriods{
		SMAShort: 20, SMAMedium: 60, SMALong: 120,
		EMAShort: 20, EMAMedium: 60, EMALong: 120,
	}
}

// Default — значения по умолчанию, поверх которых декодируется YAML.
func Default() Config {
	return Config{
		Exchange: Exchange{
			BaseURL:    getenvDefault("ASTER_API_BASE_URL", "https://fapi.asterdex.com"),
			RecvWindow: int64(intFromEnv("RECV_WINDOW", 50000)),
			Timeout:    durationFromEnv("EXCHANGE_TIMEOUT", "30s"),
		},
		Trading: Trading{
			Symbols:            splitList(getenvDefault("SYMBOLS", "BTCUSDT")),
			MaxLeverage:        intFromEnv("MAX_LEVERAGE", 5),
			MaxPositionPercent: floatFromEnv("MAX_POSITION_PERCENT", 30),
			MarginType:         getenvDefault("MARGIN_TYPE", "ISOLATED"),
			StopLossPercent:    3,
			TakeProfitPercent:  10,
		},
		Strategies: Strategies{
			HighFrequency: Cadence{
				Enabled:                     boolFromEnv("HF_ENABLED", true),
				Interval:                    "15m",
				CheckIntervalSeconds:        300,
				MAPeriods:                   defaultPeriods(),
				ConvergenceThresholdPercent: 2.0,
				BreakoutConfirmationMinutes: 30,
			},
			MediumFrequency: Cadence{
				Enabled:                     boolFromEnv("MF_ENABLED", false),
				Interval:                    "4h",
				CheckIntervalSeconds:        3600,
				MAPeriods:                   defaultPeriods(),
				ConvergenceThresholdPercent: 2.0,
				BreakoutConfirmationMinutes: 30,
			},
		},
		Manual: Manual{
			Enabled:                boolFromEnv("MANUAL_ENABLED", true),
			DefaultLeverage:        3,
			DefaultPositionPercent: 20,
			CheckInterval:          10 * time.Second,
			OrderFile:              getenvDefault("MANUAL_ORDER_FILE", "manual_orders.json"),
			FilePollInterval:       5 * time.Second,
			EnableFileWatch:        true,
			APIHost:                "0.0.0.0",
			APIPort:                intFromEnv("MANUAL_API_PORT", 8080),
		},
		Advisory: Advisory{
			Provider:         getenvDefault("ADVISORY_PROVIDER", "deepseek"),
			Timeout:          30 * time.Second,
			ConfirmThreshold: 90,
		},
		Tracing: Tracing{
			Host: "localhost",
			Port: 6831,
		},
		Log: Log{
			Level:      getenvDefault("LOG_LEVEL", "info"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Health: Health{Addr: getenvDefault("HEALTH_ADDR", ":8081")},
	}
}

func NewConfig() (*Config, error) {
	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")
	return Load("configs/" + configFileName)
}

// Load читает YAML (если файл есть), применяет env и проверяет обязательные поля.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer func() {
			_ = file.Close()
		}()
		if err := yaml.NewDecoder(file).Decode(&config); err != nil {
			return nil, errors.Wrapf(err, "decode config %s", path)
		}
	case os.IsNotExist(err):
		// работаем на дефолтах + env
	default:
		return nil, errors.Wrapf(err, "open config %s", path)
	}

	overrideFromEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func overrideFromEnv(c *Config) {
	if v := os.Getenv(asterUserENV); v != "" {
		c.Exchange.User = v
	}
	if v := os.Getenv(asterSignerENV); v != "" {
		c.Exchange.Signer = v
	}
	if v := os.Getenv(asterKeyENV); v != "" {
		c.Exchange.PrivateKey = v
	}
	if v := os.Getenv(advisoryKeyENV); v != "" {
		c.Advisory.APIKey = v
	}
	if v := os.Getenv(tokenTelegramENV); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	c.Tracing.Enabled = boolFromEnv("TRACING_ENABLED", c.Tracing.Enabled)
}

// Validate — ошибки конфигурации фатальны на старте.
func (c *Config) Validate() error {
	if c.Exchange.User == "" {
		return fmt.Errorf("exchange.user is required (env %s)", asterUserENV)
	}
	if c.Exchange.Signer == "" {
		return fmt.Errorf("exchange.signer is required (env %s)", asterSignerENV)
	}
	if c.Exchange.PrivateKey == "" {
		return fmt.Errorf("exchange.private_key is required (env %s)", asterKeyENV)
	}
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols is empty")
	}
	if c.Trading.MaxLeverage < 1 {
		return fmt.Errorf("trading.max_leverage must be >= 1, got %d", c.Trading.MaxLeverage)
	}
	switch c.Trading.MarginType {
	case "ISOLATED", "CROSSED":
	default:
		return fmt.Errorf("trading.margin_type must be ISOLATED or CROSSED, got %q", c.Trading.MarginType)
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
