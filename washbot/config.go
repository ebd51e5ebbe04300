package washbot

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

type Config struct {
	Log          LogConfig          `toml:"log"`
	Bot          BotConfig          `toml:"bot"`
	DB           DBConfig           `toml:"db"`
	SMTP         SMTPConfig         `toml:"smtp"`
	Verification VerificationConfig `toml:"verification"`
	Booking      BookingConfig      `toml:"booking"`
	Store        StoreConfig        `toml:"store"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

type SMTPConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	User       string `toml:"user"`
	Password   string `toml:"password"`
	SenderName string `toml:"sender_name"`
}

type VerificationConfig struct {
	EmailDomain       string `toml:"email_domain"`
	MaxSendsPerWindow int    `toml:"max_sends_per_window"`
}

type BookingConfig struct {
	Timezone     string `toml:"timezone"`
	SlotsPerPage int    `toml:"slots_per_page"`
	DatesPerPage int    `toml:"dates_per_page"`
	RulesPath    string `toml:"rules_path"`
	MemoPath     string `toml:"memo_path"`
}

type StoreConfig struct {
	// Backend selects the inventory substrate: "postgres" or "memory".
	Backend string `toml:"backend"`
}

func (c *Config) applyDefaults() {
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 465
	}
	if c.Verification.EmailDomain == "" {
		c.Verification.EmailDomain = "@math.msu.ru"
	}
	if c.Verification.MaxSendsPerWindow == 0 {
		c.Verification.MaxSendsPerWindow = 2
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "Europe/Moscow"
	}
	if c.Booking.SlotsPerPage == 0 {
		c.Booking.SlotsPerPage = 5
	}
	if c.Booking.DatesPerPage == 0 {
		c.Booking.DatesPerPage = 5
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "postgres"
	}
}
