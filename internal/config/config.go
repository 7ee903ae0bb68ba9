package config

import (
	"os"
	"strconv"

	"github.com/Waryjustice/azure-incident-resolver/internal/diagnosis"
)

// Config holds all application configuration
type Config struct {
	// Server
	ServerPort string

	// Database
	DatabaseURL string

	// Message bus: "channel" (in-process) or "postgres" (durable queue)
	BusMode string

	// AWS
	AWSRegion string

	// CORS
	CORSAllowOrigin string

	// Kubernetes
	KubeConfig string
	Namespace  string

	// Anthropic
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicTimeout int

	// Notifications
	WebhookURL string

	// API gateway admin endpoint (circuit breaker toggles)
	GatewayURL string

	// GitHub (permanent-fix pull requests)
	GitHubOwner      string
	GitHubRepo       string
	GitHubToken      string
	GitHubBaseBranch string

	// Detection monitor (optional, needs both set)
	PrometheusURL      string
	MonitorTargetsFile string

	// Pipeline tuning; HistorySize bounds the diagnosis similarity window
	HistorySize       int
	DetectionInterval int
	DryRun            bool
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		ServerPort:         envOrDefault("SERVER_PORT", "8080"),
		DatabaseURL:        envOrDefault("DATABASE_URL", ""),
		BusMode:            envOrDefault("BUS_MODE", "channel"),
		AWSRegion:          envOrDefault("AWS_DEFAULT_REGION", "us-east-1"),
		CORSAllowOrigin:    envOrDefault("CORS_ALLOW_ORIGIN", "http://localhost:5173"),
		KubeConfig:         envOrDefault("KUBECONFIG", ""),
		Namespace:          envOrDefault("K8S_NAMESPACE", "default"),
		AnthropicAPIKey:    envOrDefault("ANTHROPIC_API_KEY", ""),
		AnthropicModel:     envOrDefault("ANTHROPIC_MODEL", ""),
		AnthropicTimeout:   EnvInt("ANTHROPIC_TIMEOUT_SECONDS", 30),
		WebhookURL:         envOrDefault("WEBHOOK_URL", ""),
		GatewayURL:         envOrDefault("GATEWAY_ADMIN_URL", ""),
		GitHubOwner:        envOrDefault("GITHUB_OWNER", ""),
		GitHubRepo:         envOrDefault("GITHUB_REPO", ""),
		GitHubToken:        envOrDefault("GITHUB_TOKEN", ""),
		GitHubBaseBranch:   envOrDefault("GITHUB_BASE_BRANCH", "main"),
		PrometheusURL:      envOrDefault("PROMETHEUS_URL", ""),
		MonitorTargetsFile: envOrDefault("MONITOR_TARGETS_FILE", ""),
		HistorySize:        EnvInt("INCIDENT_HISTORY_SIZE", diagnosis.DefaultHistorySize),
		DetectionInterval:  EnvInt("DETECTION_INTERVAL_SECONDS", 60),
		DryRun:             EnvBool("DRY_RUN", false),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvInt reads an integer environment variable with a fallback
func EnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// EnvBool reads a boolean environment variable with a fallback
func EnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
