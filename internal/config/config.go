package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoopConfig holds control loop timing settings.
type LoopConfig struct {
	Period time.Duration `json:"period" mapstructure:"period"`
}

// CanbusConfig holds SocketCAN actuator backend settings.
type CanbusConfig struct {
	Interface       string `json:"interface" mapstructure:"interface"`
	LeftID          uint32 `json:"leftId" mapstructure:"leftId"`
	RightID         uint32 `json:"rightId" mapstructure:"rightId"`
	LeftFollowerID  uint32 `json:"leftFollowerId" mapstructure:"leftFollowerId"`
	RightFollowerID uint32 `json:"rightFollowerId" mapstructure:"rightFollowerId"`
}

// SerialConfig holds serial actuator backend settings.
type SerialConfig struct {
	Port     string `json:"port" mapstructure:"port"`
	BaudRate int    `json:"baudRate" mapstructure:"baudRate"`
}

// ActuatorConfig selects and configures the actuator backend.
type ActuatorConfig struct {
	Backend string       `json:"backend" mapstructure:"backend"`
	Canbus  CanbusConfig `json:"canbus" mapstructure:"canbus"`
	Serial  SerialConfig `json:"serial" mapstructure:"serial"`
}

// WebsocketConfig holds live stream websocket settings.
type WebsocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// MemoryConfig holds in-memory stream backend settings.
type MemoryConfig struct {
	Capacity int `json:"capacity" mapstructure:"capacity"`
}

// StreamConfig selects and configures the live telemetry stream backend.
type StreamConfig struct {
	Enabled   bool            `json:"enabled" mapstructure:"enabled"`
	Backend   string          `json:"backend" mapstructure:"backend"`
	Websocket WebsocketConfig `json:"websocket" mapstructure:"websocket"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
}

// BlackboxConfig holds tick recorder settings.
type BlackboxConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	BatchSize     int           `json:"batchSize" mapstructure:"batchSize"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
	DumpInterval  time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// GeoConfig anchors odometry in a world coordinate frame.
type GeoConfig struct {
	Enabled   bool    `json:"enabled" mapstructure:"enabled"`
	OriginLat float64 `json:"originLat" mapstructure:"originLat"`
	OriginLon float64 `json:"originLon" mapstructure:"originLon"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("vehicleName", "rover")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("loop.period", "5ms")

	viper.SetDefault("actuator.backend", "sim")
	viper.SetDefault("actuator.canbus.interface", "can0")
	viper.SetDefault("actuator.canbus.leftId", 1)
	viper.SetDefault("actuator.canbus.rightId", 2)
	viper.SetDefault("actuator.canbus.leftFollowerId", 3)
	viper.SetDefault("actuator.canbus.rightFollowerId", 4)
	viper.SetDefault("actuator.serial.port", "/dev/ttyACM0")
	viper.SetDefault("actuator.serial.baudRate", 115200)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "drived")

	viper.SetDefault("influx.enabled", true)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "drived-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("stream.enabled", false)
	viper.SetDefault("stream.backend", "websocket")
	viper.SetDefault("stream.websocket.url", "ws://localhost:5001/stream")
	viper.SetDefault("stream.websocket.secret", "")
	viper.SetDefault("stream.memory.capacity", 1024)

	viper.SetDefault("blackbox.enabled", true)
	viper.SetDefault("blackbox.batchSize", 128)
	viper.SetDefault("blackbox.flushInterval", "500ms")
	viper.SetDefault("blackbox.dumpInterval", "3m")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "drived")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("geo.enabled", false)
	viper.SetDefault("geo.originLat", 0.0)
	viper.SetDefault("geo.originLon", 0.0)

	viper.SetConfigName("drived.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetLoopConfig returns control loop settings. Periods outside 1..100ms are
// pulled back to the nearest bound so a bad config cannot stall or spin the
// loop.
func GetLoopConfig() LoopConfig {
	period := viper.GetDuration("loop.period")
	if period < time.Millisecond {
		period = time.Millisecond
	}
	if period > 100*time.Millisecond {
		period = 100 * time.Millisecond
	}
	return LoopConfig{Period: period}
}

// GetActuatorConfig returns actuator backend settings.
func GetActuatorConfig() ActuatorConfig {
	return ActuatorConfig{
		Backend: viper.GetString("actuator.backend"),
		Canbus: CanbusConfig{
			Interface:       viper.GetString("actuator.canbus.interface"),
			LeftID:          viper.GetUint32("actuator.canbus.leftId"),
			RightID:         viper.GetUint32("actuator.canbus.rightId"),
			LeftFollowerID:  viper.GetUint32("actuator.canbus.leftFollowerId"),
			RightFollowerID: viper.GetUint32("actuator.canbus.rightFollowerId"),
		},
		Serial: SerialConfig{
			Port:     viper.GetString("actuator.serial.port"),
			BaudRate: viper.GetInt("actuator.serial.baudRate"),
		},
	}
}

// GetStreamConfig returns live stream settings.
func GetStreamConfig() StreamConfig {
	return StreamConfig{
		Enabled: viper.GetBool("stream.enabled"),
		Backend: viper.GetString("stream.backend"),
		Websocket: WebsocketConfig{
			URL:    viper.GetString("stream.websocket.url"),
			Secret: viper.GetString("stream.websocket.secret"),
		},
		Memory: MemoryConfig{
			Capacity: viper.GetInt("stream.memory.capacity"),
		},
	}
}

// GetBlackboxConfig returns tick recorder settings.
func GetBlackboxConfig() BlackboxConfig {
	return BlackboxConfig{
		Enabled:       viper.GetBool("blackbox.enabled"),
		BatchSize:     viper.GetInt("blackbox.batchSize"),
		FlushInterval: viper.GetDuration("blackbox.flushInterval"),
		DumpInterval:  viper.GetDuration("blackbox.dumpInterval"),
	}
}

// GetOTelConfig returns OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetGeoConfig returns world frame settings for odometry.
func GetGeoConfig() GeoConfig {
	return GeoConfig{
		Enabled:   viper.GetBool("geo.enabled"),
		OriginLat: viper.GetFloat64("geo.originLat"),
		OriginLon: viper.GetFloat64("geo.originLon"),
	}
}

// GetTuning returns the flattened tuning section, ready to seed the parameter
// store. Nested maps become dotted keys: {"drive":{"gearRatio":12}} yields
// "drive.gearRatio".
func GetTuning() map[string]any {
	flat := make(map[string]any)
	flattenInto(flat, "", viper.GetStringMap("tuning"))
	return flat
}

func flattenInto(dst map[string]any, prefix string, src map[string]any) {
	for k, v := range src {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(dst, key, nested)
			continue
		}
		dst[key] = v
	}
}
