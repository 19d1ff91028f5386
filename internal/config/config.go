// Package config carga la configuración del gate: YAML con defaults
// sanos + overrides por variables de entorno + validación.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Bot struct {
		Token string `yaml:"token"`
		// Mode: "polling" | "webhook"
		Mode string `yaml:"mode"`
		// WebhookBaseURL: base pública para registrar el webhook (modo webhook).
		WebhookBaseURL string `yaml:"webhook_base_url"`
		// Addr del server HTTP local (webhook + /metrics + /healthz).
		Addr string `yaml:"addr"`
	} `yaml:"bot"`

	Claims struct {
		// Secret firma todos los claims del proceso.
		Secret string `yaml:"secret"`
	} `yaml:"claims"`

	Captcha struct {
		SiteKey   string `yaml:"site_key"`
		SecretKey string `yaml:"secret_key"`
		VerifyURL string `yaml:"verify_url"`
	} `yaml:"captcha"`

	Blobstore struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"blobstore"`

	VerifyPage struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"verify_page"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Rate struct {
		// Disabled apaga el anti-flood (default: activo).
		Disabled     bool   `yaml:"disabled"`
		SilentWindow string `yaml:"silent_window"`
		NoticeWindow string `yaml:"notice_window"`
	} `yaml:"rate"`
}

// Load lee el YAML (path opcional: "" => sólo defaults+env) y aplica
// defaults, overrides de entorno y validación.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Bot.Mode == "" {
		c.Bot.Mode = "polling"
	}
	if c.Bot.Addr == "" {
		c.Bot.Addr = ":8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Rate.SilentWindow == "" {
		c.Rate.SilentWindow = "10s"
	}
	if c.Rate.NoticeWindow == "" {
		c.Rate.NoticeWindow = "30s"
	}
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnvOverrides: las env vars pisan el YAML (deployment-friendly).
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("VERIGATE_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("VERIGATE_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("BOT_TOKEN"); ok {
		c.Bot.Token = v
	}
	if v, ok := getEnvStr("VERIGATE_BOT_MODE"); ok {
		c.Bot.Mode = v
	}
	if v, ok := getEnvStr("VERIGATE_WEBHOOK_BASE_URL"); ok {
		c.Bot.WebhookBaseURL = v
	}
	if v, ok := getEnvStr("VERIGATE_ADDR"); ok {
		c.Bot.Addr = v
	}
	if v, ok := getEnvStr("CLAIM_SECRET"); ok {
		c.Claims.Secret = v
	}
	if v, ok := getEnvStr("CAPTCHA_SITEKEY"); ok {
		c.Captcha.SiteKey = v
	}
	if v, ok := getEnvStr("CAPTCHA_SECRETKEY"); ok {
		c.Captcha.SecretKey = v
	}
	if v, ok := getEnvStr("VERIGATE_CAPTCHA_VERIFY_URL"); ok {
		c.Captcha.VerifyURL = v
	}
	if v, ok := getEnvStr("VERIGATE_BLOBSTORE_URL"); ok {
		c.Blobstore.BaseURL = v
	}
	if v, ok := getEnvStr("VERIGATE_PAGE_URL"); ok {
		c.VerifyPage.BaseURL = v
	}
	if v, ok := getEnvStr("VERIGATE_CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("VERIGATE_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("VERIGATE_REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("VERIGATE_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvBool("VERIGATE_RATE_DISABLED"); ok {
		c.Rate.Disabled = v
	}
}

// Validate chequea lo mínimo para poder arrancar.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bot.Token) == "" {
		return fmt.Errorf("config: bot token requerido (BOT_TOKEN o bot.token)")
	}
	if strings.TrimSpace(c.Claims.Secret) == "" {
		return fmt.Errorf("config: claim secret requerido (CLAIM_SECRET o claims.secret)")
	}
	if strings.EqualFold(c.App.Env, "prod") && len(c.Claims.Secret) < 32 {
		return fmt.Errorf("config: en prod el claim secret debe tener al menos 32 bytes")
	}
	if c.Bot.Mode != "polling" && c.Bot.Mode != "webhook" {
		return fmt.Errorf("config: bot.mode inválido %q (polling|webhook)", c.Bot.Mode)
	}
	if c.Bot.Mode == "webhook" && strings.TrimSpace(c.Bot.WebhookBaseURL) == "" {
		return fmt.Errorf("config: webhook_base_url requerido en modo webhook")
	}
	for _, d := range []string{c.Rate.SilentWindow, c.Rate.NoticeWindow, c.Cache.Memory.DefaultTTL} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("config: duración inválida %q: %w", d, err)
		}
	}
	return nil
}

// Duration parsea una duración ya validada.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
