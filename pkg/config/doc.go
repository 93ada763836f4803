// Package config loads fleetd configuration.
//
// Values start from Default, are overlaid by the YAML file named in
// FLEET_CONFIG_FILE and finally by individual environment variables:
//
//	FLEET_HOST="0.0.0.0"
//	FLEET_PORT="8080"
//	FLEET_HEALTH_PORT="9090"
//
//	FLEET_STORAGE_TYPE="memory"          # memory or redis
//	FLEET_PACKAGE_DIR="./data/packages"
//	FLEET_REDIS_URL="redis://localhost:6379"
//
//	FLEET_MAX_WORKERS="8"
//	FLEET_COMMAND_TIMEOUT="30s"
//	FLEET_WORKER_IDLE_TIMEOUT="10m"
//	FLEET_STRICT_INTEGRITY="false"
//	FLEET_WATCH_DIR="/var/lib/fleet/drop"
//	FLEET_MAINTENANCE_SCHEDULE="@every 30s"
//
//	FLEET_LOG_LEVEL="info"               # debug, info, warn, error
//	FLEET_OTEL_ENABLED="true"
//	FLEET_OTEL_ENDPOINT="otel-collector:4317"
//	FLEET_OTEL_SAMPLE_RATIO="0.1"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
