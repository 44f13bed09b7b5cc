package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Steam      SteamConfig      `yaml:"steam"`
	Limits     LimitsConfig     `yaml:"limits"`
	Automation AutomationConfig `yaml:"automation"`
	Provider   ProviderConfig   `yaml:"provider"`
	Browser    BrowserConfig    `yaml:"browser"`
	Notify     NotifyConfig     `yaml:"notify"`
}

type ServerConfig struct {
	Addr string     `yaml:"addr"`
	Cors CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
	// EventRetention caps the persisted event log.
	EventRetention int `yaml:"eventRetention"`
}

type SteamConfig struct {
	SteamID string `yaml:"steamId"`
	// CredentialsKey seals session cookies at rest. 32 bytes.
	CredentialsKey string `yaml:"credentialsKey"`
}

type LimitsConfig struct {
	BackendQPS   float64 `yaml:"backendQPS"`
	BackendBurst int     `yaml:"backendBurst"`
}

type AutomationConfig struct {
	InitialDelayMs   int    `yaml:"initialDelayMs"`
	ProbeTimeoutMs   int    `yaml:"probeTimeoutMs"`
	SchedulePollMs   int    `yaml:"schedulePollMs"`
	RetryDelayMs     int    `yaml:"retryDelayMs"`
	AntiAwaySchedule string `yaml:"antiAwaySchedule"`
	AutoIdleAttempts int    `yaml:"autoIdleAttempts"`
}

func (c AutomationConfig) InitialDelay() time.Duration {
	if c.InitialDelayMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.InitialDelayMs) * time.Millisecond
}

func (c AutomationConfig) ProbeTimeout() time.Duration {
	if c.ProbeTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

func (c AutomationConfig) SchedulePoll() time.Duration {
	if c.SchedulePollMs <= 0 {
		return time.Minute
	}
	return time.Duration(c.SchedulePollMs) * time.Millisecond
}

func (c AutomationConfig) RetryDelay() time.Duration {
	if c.RetryDelayMs <= 0 {
		return time.Minute
	}
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

type ProviderConfig struct {
	BaseURL   string           `yaml:"baseURL"`
	TimeoutMs int              `yaml:"timeoutMs"`
	Retry     ProviderRetryCfg `yaml:"retry"`
	Token     string           `yaml:"token"`
}

type ProviderRetryCfg struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"waitMs"`
	MaxWaitMs int `yaml:"maxWaitMs"`
}

func (c ProviderConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c ProviderRetryCfg) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

func (c ProviderRetryCfg) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 1200 * time.Millisecond
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

type BrowserConfig struct {
	Headless       bool   `yaml:"headless"`
	UserDataDir    string `yaml:"userDataDir"`
	LoginTimeoutMs int    `yaml:"loginTimeoutMs"`
	UserAgent      string `yaml:"userAgent"`
}

func (c BrowserConfig) LoginTimeout() time.Duration {
	if c.LoginTimeoutMs <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(c.LoginTimeoutMs) * time.Millisecond
}

type NotifyConfig struct {
	SummaryWindowMs int            `yaml:"summaryWindowMs"`
	Discord         DiscordConfig  `yaml:"discord"`
	Telegram        TelegramConfig `yaml:"telegram"`
	SMTP            SMTPConfig     `yaml:"smtp"`
}

func (c NotifyConfig) SummaryWindow() time.Duration {
	if c.SummaryWindowMs < 0 {
		return 0
	}
	if c.SummaryWindowMs == 0 {
		return 20 * time.Second
	}
	return time.Duration(c.SummaryWindowMs) * time.Millisecond
}

type DiscordConfig struct {
	WebhookURL string `yaml:"webhookURL"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chatId"`
}

// SMTPConfig overrides the server picked from the sender's mail domain.
type SMTPConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	UseSSL bool   `yaml:"useSSL"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyEnv(newEnv())
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("IDLE_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// applyEnv lets secrets and deployment-specific values come from IDLE_ENGINE_* variables.
func (c *Config) applyEnv(v *viper.Viper) {
	setString := func(key string, dst *string) {
		if s := strings.TrimSpace(v.GetString(key)); s != "" {
			*dst = s
		}
	}
	setString("server.addr", &c.Server.Addr)
	setString("storage.sqlitePath", &c.Storage.SQLitePath)
	setString("steam.steamId", &c.Steam.SteamID)
	setString("steam.credentialsKey", &c.Steam.CredentialsKey)
	setString("provider.baseURL", &c.Provider.BaseURL)
	setString("provider.token", &c.Provider.Token)
	setString("notify.discord.webhookURL", &c.Notify.Discord.WebhookURL)
	setString("notify.telegram.token", &c.Notify.Telegram.Token)
	setString("notify.smtp.host", &c.Notify.SMTP.Host)
	if v.IsSet("notify.telegram.chatId") {
		if id := v.GetInt64("notify.telegram.chatId"); id != 0 {
			c.Notify.Telegram.ChatID = id
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/idle_engine.db"
	}
	if c.Storage.EventRetention <= 0 {
		c.Storage.EventRetention = 5000
	}
	if c.Limits.BackendQPS <= 0 {
		c.Limits.BackendQPS = 5
	}
	if c.Limits.BackendBurst <= 0 {
		c.Limits.BackendBurst = 10
	}
	if c.Automation.AntiAwaySchedule == "" {
		c.Automation.AntiAwaySchedule = "@every 3m"
	}
	if c.Automation.AutoIdleAttempts <= 0 {
		c.Automation.AutoIdleAttempts = 3
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "http://127.0.0.1:8080/mock"
	}
	if c.Provider.Retry.Count < 0 {
		c.Provider.Retry.Count = 0
	}
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Provider.BaseURL == "" {
		return errors.New("provider.baseURL is required")
	}
	if strings.TrimSpace(c.Steam.SteamID) == "" {
		return errors.New("steam.steamId is required")
	}
	if k := c.Steam.CredentialsKey; k != "" && len(k) != 32 {
		return errors.New("steam.credentialsKey must be 32 bytes")
	}
	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID == 0 {
		return errors.New("notify.telegram.chatId is required when a token is set")
	}
	return nil
}
