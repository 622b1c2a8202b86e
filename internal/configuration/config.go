package configuration

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Database    DatabaseConfig
	MinIO       MinIOConfig
	Server      ServerConfig
	Redis       RedisConfig
	Workflow    WorkflowConfig
	NATSURL     string
	KeycloakUrl string
	ClientID    string
	CLAMAVURL   string
	// StoreBackend is "postgres" or "memory".
	StoreBackend string
	SnapshotPath string
	DDEnabled    bool
	LogLevel     string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
}

type ServerConfig struct {
	Port           string
	MaxUploadBytes int64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type WorkflowConfig struct {
	// Transitions is "permissive" or "strict".
	Transitions          string
	AllowExpertStatus    bool
	CommentImageMaxBytes int64
}

var defaults = map[string]any{
	"DB_HOST":                 "localhost",
	"DB_PORT":                 "5432",
	"DB_USER":                 "fileuser",
	"DB_PASSWORD":             "filepassword",
	"DB_NAME":                 "ecufiles",
	"DB_SSL_MODE":             "disable",
	"MINIO_ENDPOINT":          "localhost:9000",
	"MINIO_ACCESS_KEY":        "minioadmin",
	"MINIO_SECRET_KEY":        "minioadmin",
	"MINIO_BUCKET":            "ecu-files",
	"MINIO_USE_SSL":           false,
	"SERVER_PORT":             "8080",
	"MAX_UPLOAD_BYTES":        int64(200 << 20),
	"NATS_URL":                "nats://localhost:4222",
	"CLAMAV_URL":              "tcp://localhost:3310",
	"KEYCLOAK_URL":            "http://localhost:8081/realms/autotech",
	"OIDC_CLIENT_ID":          "frontend",
	"STORE_BACKEND":           "postgres",
	"SNAPSHOT_PATH":           "",
	"REDIS_ADDR":              "",
	"REDIS_PASSWORD":          "",
	"REDIS_DB":                0,
	"WORKFLOW_TRANSITIONS":    "permissive",
	"EXPERTS_CAN_SET_STATUS":  false,
	"COMMENT_IMAGE_MAX_BYTES": int64(5 << 20),
	"DD_ENABLED":              false,
	"LOG_LEVEL":               "info",
}

// Load reads configuration from the environment, falling back to defaults.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSL_MODE"),
		},
		MinIO: MinIOConfig{
			Endpoint:   v.GetString("MINIO_ENDPOINT"),
			AccessKey:  v.GetString("MINIO_ACCESS_KEY"),
			SecretKey:  v.GetString("MINIO_SECRET_KEY"),
			BucketName: v.GetString("MINIO_BUCKET"),
			UseSSL:     v.GetBool("MINIO_USE_SSL"),
		},
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Workflow: WorkflowConfig{
			Transitions:          strings.ToLower(v.GetString("WORKFLOW_TRANSITIONS")),
			AllowExpertStatus:    v.GetBool("EXPERTS_CAN_SET_STATUS"),
			CommentImageMaxBytes: v.GetInt64("COMMENT_IMAGE_MAX_BYTES"),
		},
		NATSURL:      v.GetString("NATS_URL"),
		CLAMAVURL:    v.GetString("CLAMAV_URL"),
		KeycloakUrl:  v.GetString("KEYCLOAK_URL"),
		ClientID:     v.GetString("OIDC_CLIENT_ID"),
		StoreBackend: strings.ToLower(v.GetString("STORE_BACKEND")),
		SnapshotPath: v.GetString("SNAPSHOT_PATH"),
		DDEnabled:    v.GetBool("DD_ENABLED"),
		LogLevel:     v.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.StoreBackend)
	}
	switch c.Workflow.Transitions {
	case "permissive", "strict":
	default:
		return fmt.Errorf("WORKFLOW_TRANSITIONS must be permissive or strict, got %q", c.Workflow.Transitions)
	}
	if c.Workflow.CommentImageMaxBytes <= 0 {
		return fmt.Errorf("COMMENT_IMAGE_MAX_BYTES must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// ConnectionString renders a postgres URL; credentials are percent-escaped.
func (c *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
