package internal

import (
	"time"
)

type Config struct {
	WebsocketURL      string        `env:"WS_URL,required=true"`
	APIURL            string        `env:"API_URL,required=true"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY,default=5s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=10s"`
	HandshakeTimeout  time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT,default=30s"`

	TypingDebounce time.Duration `env:"TYPING_DEBOUNCE,default=800ms"`
	TypingTimeout  time.Duration `env:"TYPING_TIMEOUT,default=2s"`

	InboundBufferSize int           `env:"INBOUND_BUFFER_SIZE,default=64"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=1s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MaxContentLength  int           `env:"MAX_CONTENT_LENGTH,default=2000"`

	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=5s"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=80"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	DebugPort      int    `env:"DEBUG_PORT,default=0"`
}
