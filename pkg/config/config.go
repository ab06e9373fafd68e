package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jds-integration/integration/pkg/auth"
	"github.com/jds-integration/integration/pkg/authz"
	"github.com/jds-integration/integration/pkg/graph"
	"github.com/jds-integration/integration/pkg/observability"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	ApplicationGroups ApplicationGroupsConfig `yaml:"application_groups"`
	Policies          PoliciesConfig          `yaml:"policies"`
	Graph             GraphConfig             `yaml:"graph"`
	AzureADB2C        AzureADB2CConfig        `yaml:"azure_ad_b2c"`
	Server            ServerConfig            `yaml:"server"`
	Storage           StorageConfig           `yaml:"storage"`
	Observability     ObservabilityConfig     `yaml:"observability"`
}

// ApplicationGroupsConfig maps each role to comma-separated directory group IDs
type ApplicationGroupsConfig struct {
	Admins    string `yaml:"admins"`
	Partners  string `yaml:"partners"`
	SFRSUsers string `yaml:"sfrs_users"`
}

// PoliciesConfig declares the roles allowed for each protected operation
type PoliciesConfig struct {
	TodoRead  string `yaml:"todo_read"`
	TodoWrite string `yaml:"todo_write"`
}

// GraphConfig holds the app registration used to query the directory
type GraphConfig struct {
	TenantID     string        `yaml:"tenant_id"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Authority    string        `yaml:"authority"`
	Scopes       string        `yaml:"scopes"`
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AzureADB2CConfig describes the token issuer the API trusts
type AzureADB2CConfig struct {
	Instance      string `yaml:"instance"`
	Tenant        string `yaml:"tenant"`
	ClientID      string `yaml:"client_id"`
	Policy        string `yaml:"policy"`
	Issuer        string `yaml:"issuer"`
	ScopeRead     string `yaml:"scope_read"`
	ScopeWrite    string `yaml:"scope_write"`
	IdentityClaim string `yaml:"identity_claim"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// DirectoryTimeout bounds the directory calls made for one authorization decision
	DirectoryTimeout time.Duration `yaml:"directory_timeout"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
}

// StorageConfig selects the to-do store
type StorageConfig struct {
	Type            string `yaml:"type"`
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	KeyPrefix       string `yaml:"key_prefix"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used before any file or environment is applied
func Default() *Config {
	return &Config{
		Policies: PoliciesConfig{
			TodoRead:  "Admins,Partners,SFRSUsers",
			TodoWrite: "Admins,Partners",
		},
		Graph: GraphConfig{
			Authority: graph.DefaultAuthority,
			Scopes:    graph.DefaultScope,
			BaseURL:   graph.DefaultBaseURL,
			Timeout:   10 * time.Second,
		},
		AzureADB2C: AzureADB2CConfig{
			ScopeRead:  "demo.read",
			ScopeWrite: "demo.write",
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             "8080",
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     15 * time.Second,
			IdleTimeout:      60 * time.Second,
			ShutdownTimeout:  30 * time.Second,
			HealthPort:       "9090",
			DirectoryTimeout: 10 * time.Second,
			MaxBodyBytes:     1 << 20,
		},
		Storage: StorageConfig{
			Type:      StorageMemory,
			KeyPrefix: "todo",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "jds-todo-api",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// LoadConfig loads defaults, then the YAML file named by JDS_CONFIG_FILE (if any),
// then environment variables, and validates the result
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("JDS_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	g := &c.ApplicationGroups
	g.Admins = getEnv("JDS_GROUPS_ADMINS", g.Admins)
	g.Partners = getEnv("JDS_GROUPS_PARTNERS", g.Partners)
	g.SFRSUsers = getEnv("JDS_GROUPS_SFRS_USERS", g.SFRSUsers)

	p := &c.Policies
	p.TodoRead = getEnv("JDS_TODO_READ_ROLES", p.TodoRead)
	p.TodoWrite = getEnv("JDS_TODO_WRITE_ROLES", p.TodoWrite)

	gr := &c.Graph
	gr.TenantID = getEnv("JDS_GRAPH_TENANT_ID", gr.TenantID)
	gr.ClientID = getEnv("JDS_GRAPH_CLIENT_ID", gr.ClientID)
	gr.ClientSecret = getEnv("JDS_GRAPH_CLIENT_SECRET", gr.ClientSecret)
	gr.Authority = getEnv("JDS_GRAPH_AUTHORITY", gr.Authority)
	gr.Scopes = getEnv("JDS_GRAPH_SCOPES", gr.Scopes)
	gr.BaseURL = getEnv("JDS_GRAPH_BASE_URL", gr.BaseURL)
	gr.Timeout = getEnvDuration("JDS_GRAPH_TIMEOUT", gr.Timeout)

	b := &c.AzureADB2C
	b.Instance = getEnv("JDS_B2C_INSTANCE", b.Instance)
	b.Tenant = getEnv("JDS_B2C_TENANT", b.Tenant)
	b.ClientID = getEnv("JDS_B2C_CLIENT_ID", b.ClientID)
	b.Policy = getEnv("JDS_B2C_POLICY", b.Policy)
	b.Issuer = getEnv("JDS_B2C_ISSUER", b.Issuer)
	b.ScopeRead = getEnv("JDS_B2C_SCOPE_READ", b.ScopeRead)
	b.ScopeWrite = getEnv("JDS_B2C_SCOPE_WRITE", b.ScopeWrite)
	b.IdentityClaim = getEnv("JDS_B2C_IDENTITY_CLAIM", b.IdentityClaim)

	s := &c.Server
	s.Host = getEnv("JDS_HOST", s.Host)
	s.Port = getEnv("JDS_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("JDS_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("JDS_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("JDS_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("JDS_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("JDS_HEALTH_PORT", s.HealthPort)
	s.DirectoryTimeout = getEnvDuration("JDS_DIRECTORY_TIMEOUT", s.DirectoryTimeout)
	s.MaxBodyBytes = getEnvInt64("JDS_MAX_BODY_BYTES", s.MaxBodyBytes)

	st := &c.Storage
	st.Type = strings.ToLower(getEnv("JDS_STORAGE_TYPE", st.Type))
	st.RedisURL = getEnv("JDS_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("JDS_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("JDS_REDIS_DB", st.RedisDB)
	st.RedisPoolSize = getEnvInt("JDS_REDIS_POOL_SIZE", st.RedisPoolSize)
	st.RedisMaxRetries = getEnvInt("JDS_REDIS_MAX_RETRIES", st.RedisMaxRetries)
	st.KeyPrefix = getEnv("JDS_REDIS_KEY_PREFIX", st.KeyPrefix)

	o := &c.Observability
	o.LogLevel = getEnv("JDS_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("JDS_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("JDS_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("JDS_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("JDS_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("JDS_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("JDS_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("JDS_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid. Role and policy problems are
// returned as *authz.ConfigurationError.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	mapping, err := c.RoleGroupMapping()
	if err != nil {
		return err
	}
	read, write, err := c.AllowedRoles()
	if err != nil {
		return err
	}
	if err := mapping.Covers(read); err != nil {
		return err
	}
	if err := mapping.Covers(write); err != nil {
		return err
	}

	if c.AzureADB2C.ClientID == "" {
		return fmt.Errorf("azure_ad_b2c client_id is required")
	}
	if c.AzureADB2C.Instance == "" || c.AzureADB2C.Tenant == "" || c.AzureADB2C.Policy == "" {
		return fmt.Errorf("azure_ad_b2c instance, tenant and policy are required")
	}

	if err := c.GraphClientConfig().Validate(); err != nil {
		return err
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or redis)", c.Storage.Type)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// RoleGroupMapping parses the application groups
func (c *Config) RoleGroupMapping() (*authz.RoleGroupMapping, error) {
	return authz.ParseRoleGroupMapping(map[string]string{
		string(authz.RoleAdmins):    c.ApplicationGroups.Admins,
		string(authz.RolePartners):  c.ApplicationGroups.Partners,
		string(authz.RoleSFRSUsers): c.ApplicationGroups.SFRSUsers,
	})
}

// AllowedRoles parses the read and write policies
func (c *Config) AllowedRoles() (read, write authz.AllowedRoles, err error) {
	read, err = authz.ParseAllowedRoles(c.Policies.TodoRead)
	if err != nil {
		return nil, nil, withField(err, "policies.todo_read")
	}
	write, err = authz.ParseAllowedRoles(c.Policies.TodoWrite)
	if err != nil {
		return nil, nil, withField(err, "policies.todo_write")
	}
	return read, write, nil
}

func withField(err error, field string) error {
	var cfgErr *authz.ConfigurationError
	if errors.As(err, &cfgErr) {
		return &authz.ConfigurationError{Field: field, Reason: cfgErr.Reason}
	}
	return err
}

// GraphClientConfig converts the graph section for graph.NewClient
func (c *Config) GraphClientConfig() graph.Config {
	return graph.Config{
		TenantID:     c.Graph.TenantID,
		ClientID:     c.Graph.ClientID,
		ClientSecret: c.Graph.ClientSecret,
		Authority:    c.Graph.Authority,
		Scopes:       authz.SplitList(c.Graph.Scopes),
		BaseURL:      c.Graph.BaseURL,
		Timeout:      c.Graph.Timeout,
	}
}

// VerifierConfig converts the B2C section for auth.NewTokenVerifier
func (c *Config) VerifierConfig() auth.VerifierConfig {
	return auth.VerifierConfig{
		Instance:      c.AzureADB2C.Instance,
		Tenant:        c.AzureADB2C.Tenant,
		Policy:        c.AzureADB2C.Policy,
		ClientID:      c.AzureADB2C.ClientID,
		Issuer:        c.AzureADB2C.Issuer,
		IdentityClaim: c.AzureADB2C.IdentityClaim,
	}
}

// OTelConfig converts the observability section for observability.InitOTel
func (c *Config) OTelConfig() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
		SampleRatio:    c.Observability.OTelSampleRatio,
	}
}

// LogLevel returns the parsed log level
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(c.Observability.LogLevel)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
