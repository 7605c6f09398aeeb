package common

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyRunIntegrationTests string = "RUN_INTEGRATION_TESTS"

	EnvKeyVitalsDBType string = "VITALS_DB_TYPE"
	EnvKeyVitalsDbPath string = "VITALS_DB_PATH"

	EnvKeyVitalsHttpHostPort string = "VITALS_HTTP_HOST_PORT"
	EnvKeyVitalsGrpcHostPort string = "VITALS_GRPC_HOST_PORT"

	EnvKeyVitalsDefaultRate  string = "VITALS_DEFAULT_RATE"
	EnvKeyVitalsDefaultBurst string = "VITALS_DEFAULT_BURST"

	EnvKeyVitalsBackend     string = "VITALS_BACKEND"
	EnvKeyVitalsPush        string = "VITALS_PUSH"
	EnvKeyVitalsBackendURL  string = "VITALS_BACKEND_URL"
	EnvKeyVitalsBackendKey  string = "VITALS_BACKEND_KEY"
	EnvKeyVitalsRealtimeURL string = "VITALS_REALTIME_URL"
	EnvKeyVitalsPostgresDSN string = "VITALS_POSTGRES_DSN"
	EnvKeyVitalsTable       string = "VITALS_TABLE"

	EnvKeyVitalsMQTTBroker   string = "VITALS_MQTT_BROKER"
	EnvKeyVitalsMQTTClientID string = "VITALS_MQTT_CLIENT_ID"
	EnvKeyVitalsMQTTUsername string = "VITALS_MQTT_USERNAME"
	EnvKeyVitalsMQTTPassword string = "VITALS_MQTT_PASSWORD"

	EnvKeyVitalsRedisAddr     string = "VITALS_REDIS_ADDR"
	EnvKeyVitalsRedisPassword string = "VITALS_REDIS_PASSWORD"
	EnvKeyVitalsRedisStream   string = "VITALS_REDIS_STREAM"

	EnvKeyVitalsTemperatureUnit   string = "VITALS_TEMPERATURE_UNIT"
	EnvKeyVitalsCriticalCount     string = "VITALS_CRITICAL_COUNT"
	EnvKeyVitalsAlertCooldown     string = "VITALS_ALERT_COOLDOWN"
	EnvKeyVitalsHistoryCapacity   string = "VITALS_HISTORY_CAPACITY"
	EnvKeyVitalsOfflineTimeout    string = "VITALS_OFFLINE_TIMEOUT"
	EnvKeyVitalsHeartbeatInterval string = "VITALS_HEARTBEAT_INTERVAL"
	EnvKeyVitalsMonitorDevices    string = "VITALS_MONITOR_DEVICES"
	EnvKeyVitalsTracing           string = "VITALS_TRACING"

	BackendLocal     string = "local"
	BackendPostgrest string = "postgrest"
	BackendPostgres  string = "postgres"

	PushLocal    string = "local"
	PushRealtime string = "realtime"
	PushMQTT     string = "mqtt"
	PushPostgres string = "postgres"

	DefaultReadingsTable string = "Health Status"

	LoggerNameVitalsCore    string = "vitals_core"
	LoggerNameBridge        string = "bridge"
	LoggerNameRestfulServer string = "restful_server"
	LoggerNameGrpcServer    string = "grpc_server"
	LoggerNameNotifier      string = "notifier"
	LoggerNameSource        string = "source"
	LoggerFieldCategory     string = "category"

	LoggerCategoryReading  string = "reading"
	LoggerCategoryAlert    string = "alert"
	LoggerCategoryEmployee string = "employee"
	LoggerCategoryDevice   string = "device"
	LoggerCategoryLiveness string = "liveness"
	LoggerCategoryPush     string = "push"
	LoggerCategoryPoll     string = "poll"
)

const (
	EnvKeyVitalsLogDir   string = "VITALS_LOG_DIR"
	EnvKeyVitalsLogLevel string = "VITALS_LOG_LEVEL"
)
