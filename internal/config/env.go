package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const namespace = "TASKDESK"

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// StoreEnv locates the durable local store used by the CLI.
type StoreEnv struct {
	StoreType       string `envconfig:"STORE_TYPE" default:"local"`
	StoreDir        string `envconfig:"STORE_DIR" default:".taskdesk"`
	StoreSQLitePath string `envconfig:"STORE_SQLITE_PATH" default:".taskdesk/taskdesk.db"`
	OwnersFile      string `envconfig:"OWNERS_FILE"`
}

type RemoteEnv struct {
	APIBaseURL  string        `envconfig:"API_BASE_URL" default:"http://localhost:3200"`
	APIKey      string        `envconfig:"API_KEY"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
}

type EngineEnv struct {
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"5s"`
	ArchiveAfter   time.Duration `envconfig:"ARCHIVE_AFTER" default:"24h"`
	MigrationDelay time.Duration `envconfig:"MIGRATION_DELAY" default:"1500ms"`
}

type SyncEnv struct {
	SyncMaxAttempts    int           `envconfig:"SYNC_MAX_ATTEMPTS" default:"5"`
	SyncInitialBackoff time.Duration `envconfig:"SYNC_INITIAL_BACKOFF" default:"500ms"`
	SyncMaxBackoff     time.Duration `envconfig:"SYNC_MAX_BACKOFF" default:"30s"`
}

type ServerEnv struct {
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".taskdesk-server"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"taskdesk/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

// ClientEnv configures the CLI and anything else embedding the engine.
type ClientEnv struct {
	BaseEnv
	StoreEnv
	RemoteEnv
	EngineEnv
	SyncEnv
}

type ServerConfig struct {
	BaseEnv
	ServerEnv
	StorageEnv
}

func LoadClientEnv() (*ClientEnv, error) {
	var env ClientEnv
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func LoadServerEnv() (*ServerConfig, error) {
	var env ServerConfig
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
