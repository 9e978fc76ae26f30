package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	log "github.com/tuannvm/otrs-connector/internal/logging"
)

const (
	// AgentName is the default name published on the agent card
	AgentName = "OTRSConnectorAgent"
	// DefaultServerPort is the A2A JSON-RPC port of the agent
	DefaultServerPort = 8080
	// ConfigFileEnv names the environment variable pointing at an optional yaml config file
	ConfigFileEnv = "OTRS_CONNECTOR_CONFIG"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerPort int
	ServerHost string
	InvokePort int // plain HTTP /invoke and /metrics

	// Agent configuration
	AgentName    string
	AgentVersion string
	AgentURL     string

	// OTRS defaults, used when an invocation carries no credentials
	OTRSBaseURL  string
	OTRSUser     string
	OTRSPassword string
	HTTPTimeout  time.Duration

	// Platform object storage
	PlatformAPIURI      string
	PlatformAPIUsername string
	PlatformAPIKey      string

	// Authentication
	AuthType  string // "jwt", "apikey" or empty
	JWTSecret string
	APIKey    string

	// Poller host
	SnapshotDBPath     string
	MetricsAddr        string
	DownstreamAgentURL string
	Jobs               []JobConfig
}

// JobConfig describes one scheduled trigger run.
type JobConfig struct {
	Name     string                 `mapstructure:"name"`
	Function string                 `mapstructure:"function"`
	Schedule string                 `mapstructure:"schedule"`
	Cfg      map[string]interface{} `mapstructure:"cfg"`
}

var v = viper.New()

// init loads environment variables from .env file and prepares viper
func init() {
	loadDotEnv()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Warnf("Failed to read config file %s: %v", path, err)
		} else {
			log.Infof("Loaded configuration from %s", v.ConfigFileUsed())
		}
	}
}

func loadDotEnv() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			log.Infof("Loaded configuration from %s file", path)
			return
		}
	}
	log.Infof("No .env file found. Using environment variables or defaults.")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", DefaultServerPort)
	v.SetDefault("server_host", "localhost")
	v.SetDefault("invoke_port", DefaultServerPort+3)
	v.SetDefault("agent_name", AgentName)
	v.SetDefault("agent_version", "1.0.0")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("auth_type", "apikey")
	v.SetDefault("snapshot_db_path", "data/snapshots.db")
	v.SetDefault("metrics_addr", ":9102")
}

// GetViper exposes the package viper instance so binaries can override keys before NewConfig
func GetViper() *viper.Viper {
	return v
}

// NewConfig creates a new configuration with values from viper (env, .env, config file)
func NewConfig() *Config {
	cfg := &Config{
		ServerPort: v.GetInt("server_port"),
		ServerHost: v.GetString("server_host"),
		InvokePort: v.GetInt("invoke_port"),

		AgentName:    v.GetString("agent_name"),
		AgentVersion: v.GetString("agent_version"),
		AgentURL:     v.GetString("agent_url"),

		OTRSBaseURL:  v.GetString("otrs_base_url"),
		OTRSUser:     v.GetString("otrs_user"),
		OTRSPassword: v.GetString("otrs_password"),
		HTTPTimeout:  v.GetDuration("http_timeout"),

		PlatformAPIURI:      v.GetString("elasticio_api_uri"),
		PlatformAPIUsername: v.GetString("elasticio_api_username"),
		PlatformAPIKey:      v.GetString("elasticio_api_key"),

		AuthType:  v.GetString("auth_type"),
		JWTSecret: v.GetString("jwt_secret"),
		APIKey:    v.GetString("api_key"),

		SnapshotDBPath:     v.GetString("snapshot_db_path"),
		MetricsAddr:        v.GetString("metrics_addr"),
		DownstreamAgentURL: v.GetString("downstream_agent_url"),
	}

	if cfg.AgentURL == "" {
		cfg.AgentURL = "http://" + cfg.ServerHost + ":" + v.GetString("server_port")
	}

	if err := v.UnmarshalKey("jobs", &cfg.Jobs); err != nil {
		log.Warnf("Ignoring malformed jobs configuration: %v", err)
	}

	return cfg
}
