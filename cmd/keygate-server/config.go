package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/luminalabs/keygate/internal/admission"
	"github.com/luminalabs/keygate/internal/api/http"
	"github.com/luminalabs/keygate/internal/keystore"
)

type Config struct {
	Log       LogConfig
	Http      http.Config
	Upstream  UpstreamConfig
	Token     TokenConfig
	Keys      keystore.Config
	Admission admission.Config
	Janitor   JanitorConfig
	Webhook   WebhookConfig
}

type UpstreamConfig struct {
	Domain      string `mapstructure:"domain"`
	Platform    string `mapstructure:"platform"`
	RedirectURL string `mapstructure:"redirect_url"`
}

type TokenConfig struct {
	Secret     string        `mapstructure:"secret"`
	PendingTTL time.Duration `mapstructure:"pending_ttl"`
}

type JanitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type WebhookConfig struct {
	DiscordURL string `mapstructure:"discord_url"`
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/keygate-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("token.secret", "TOKEN_SECRET")
	_ = viper.BindEnv("http.admin_api_key", "ADMIN_API_KEY")
	_ = viper.BindEnv("webhook.discord_url", "DISCORD_WEBHOOK_URL")

	viper.SetDefault("log.level", "INFO")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("upstream.domain", "lootlabs.gg")
	viper.SetDefault("upstream.platform", "lootlabs")
	viper.SetDefault("token.pending_ttl", "30m")
	viper.SetDefault("keys.ttl", "24h")
	viper.SetDefault("keys.single_use", false)
	viper.SetDefault("admission.max_keys_per_ip", 1)
	viper.SetDefault("admission.max_attempts_per_hour", 10)
	viper.SetDefault("admission.cooldown", "30m")
	viper.SetDefault("admission.fraud_threshold", 5)
	viper.SetDefault("admission.min_passing_checks", 5)
	viper.SetDefault("admission.fraud_retention", "24h")
	viper.SetDefault("admission.min_user_agent_length", 10)
	viper.SetDefault("janitor.interval", "1h")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	if config.Token.Secret == "" {
		panic("token.secret is required (set TOKEN_SECRET)")
	}

	initLogger(config.Log.Level)

	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
