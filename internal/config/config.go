package config

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Heartbeat HeartbeatConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type HeartbeatConfig struct {
	Interval string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4610,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Heartbeat: HeartbeatConfig{
			Interval: "30s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.tether.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/tether/config.json.
//
// Environment variables (TETHER_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
