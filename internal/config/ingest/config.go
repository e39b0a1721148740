package ingest_config

import (
	"time"

	pginfra "github.com/NordCoder/Heartline/internal/repository/postgres"
)

type KafkaOut struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Server struct {
	HTTPAddr     string        `mapstructure:"http_addr"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type Outbox struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
}

type Config struct {
	DB           pginfra.Config `mapstructure:"db"`
	Out          KafkaOut       `mapstructure:"kafka_out"`
	Server       Server         `mapstructure:"server"`
	Outbox       Outbox         `mapstructure:"outbox"`
	OTEL         OTEL           `mapstructure:"otel"`
	NotifyPolicy string         `mapstructure:"notify_policy"` // "every" | "transition"
	LogLevel     string         `mapstructure:"log_level"`
}
