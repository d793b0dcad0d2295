package config

import (
	pkgconfig "github.com/alefe53/mis-esencias-live/pkg/config"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Token     TokenConfig
	Studio    StudioConfig
	Recording RecordingConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string
	DB       int `mapstructure:"db"`
	PoolSize int `mapstructure:"pool_size"`
}

type StorageConfig struct {
	Driver          string `mapstructure:"driver"` // s3, local
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	PublicURL       string `mapstructure:"public_url"`
	BasePath        string `mapstructure:"base_path"` // local only
}

type TokenConfig struct {
	Issuer           string `mapstructure:"issuer"`
	AccessTTLMinutes int    `mapstructure:"access_ttl_minutes"`
	RoomTTLMinutes   int    `mapstructure:"room_ttl_minutes"`
	AdminIdentity    string `mapstructure:"admin_identity"`
}

type StudioConfig struct {
	RoomID string `mapstructure:"room_id"`
}

type RecordingConfig struct {
	EgressURL           string `mapstructure:"egress_url"`
	OutputPrefix        string `mapstructure:"output_prefix"`
	FileType            string `mapstructure:"file_type"`
	Layout              string `mapstructure:"layout"`
	AbandonedAfterHours int    `mapstructure:"abandoned_after_hours"`
	SweepIntervalMin    int    `mapstructure:"sweep_interval_min"`
	URLExpiryMinutes    int    `mapstructure:"url_expiry_minutes"`
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "studio")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/studio.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "recordings")
	v.SetDefault("storage.base_path", "./data/recordings")
	v.SetDefault("token.issuer", "mis-esencias-live")
	v.SetDefault("token.access_ttl_minutes", 60)
	v.SetDefault("token.room_ttl_minutes", 240)
	v.SetDefault("token.admin_identity", "admin")
	v.SetDefault("studio.room_id", "studio-main")
	v.SetDefault("recording.egress_url", "http://localhost:7880")
	v.SetDefault("recording.output_prefix", "recordings/")
	v.SetDefault("recording.file_type", "mp4")
	v.SetDefault("recording.layout", "grid")
	v.SetDefault("recording.abandoned_after_hours", 12)
	v.SetDefault("recording.sweep_interval_min", 60)
	v.SetDefault("recording.url_expiry_minutes", 60)
	v.SetDefault("log.level", "info")

	// Bind environment variables
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_access_key", "STORAGE_SECRET_KEY")
	v.BindEnv("token.admin_identity", "ADMIN_IDENTITY")
	v.BindEnv("studio.room_id", "STUDIO_ROOM_ID")
	v.BindEnv("recording.egress_url", "EGRESS_URL")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
