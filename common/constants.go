package common

import "time"

const DefaultRpcWaitTime = 30 * time.Second

const ServiceName = "fanout"

const (
	Env_MetricsEndpoint = "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"
	Env_DbHost          = "PG_HOST"
	Env_DbName          = "PG_DB"
	Env_DbPassword      = "PG_PASSWORD"
	Env_DbPort          = "PG_PORT"
	Env_DbUsername      = "PG_USER"
)
