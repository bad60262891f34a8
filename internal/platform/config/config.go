package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Render    RenderConfig    `mapstructure:"render"`
	Mail      MailConfig      `mapstructure:"mail"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Path is a sqlite file path, optionally prefixed with "file:".
	Path           string        `mapstructure:"path"`
	MaxConnections int           `mapstructure:"max_connections"`
	BusyTimeout    time.Duration `mapstructure:"busy_timeout"`
}

type CacheConfig struct {
	QuotaTypeTTL time.Duration `mapstructure:"quota_type_ttl"`
	MaxEntries   int           `mapstructure:"max_entries"`
}

type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// RedisConfig points at the refresh-token session store. An empty Addr
// disables server-side revocation.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type BootstrapConfig struct {
	SuperUserName     string `mapstructure:"superuser_name"`
	SuperUserPassword string `mapstructure:"superuser_password"`
}

type WorkerConfig struct {
	PurgeSchedule string        `mapstructure:"purge_schedule"`
	Retention     time.Duration `mapstructure:"retention"`
}

// RenderConfig holds the public page URLs that QR codes point at. The
// resource id is appended as the last path segment.
type RenderConfig struct {
	InvitationBaseURL string `mapstructure:"invitation_base_url"`
	TicketBaseURL     string `mapstructure:"ticket_base_url"`
	// QRBaseURL is where this server's /render routes are reachable from
	// outside. Mail embeds QR images from it.
	QRBaseURL string `mapstructure:"qr_base_url"`
}

// MailConfig configures SMTP delivery. Sending is disabled while SMTPHost
// is empty.
type MailConfig struct {
	SMTPHost    string `mapstructure:"smtp_host"`
	SMTPPort    int    `mapstructure:"smtp_port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	// Timezone is the IANA zone event times are shown in.
	Timezone string `mapstructure:"timezone"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.path", "./data/quotr.db")
	v.SetDefault("database.max_connections", 8)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("cache.quota_type_ttl", 5*time.Minute)
	v.SetDefault("cache.max_entries", 1024)

	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_token_ttl", 24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("bootstrap.superuser_name", "superuser")

	v.SetDefault("worker.purge_schedule", "@daily")
	v.SetDefault("worker.retention", 30*24*time.Hour)

	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.from_address", "no-reply@localhost")
	v.SetDefault("mail.from_name", "Quotr")
	v.SetDefault("mail.timezone", "UTC")
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
