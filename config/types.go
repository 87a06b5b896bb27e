package config

// SourceConfig describes one upstream traffic service.
type SourceConfig struct {
	Name string `yaml:"name" validate:"required"`
	// Kind selects the transport: http polls, ws is pushed to, mock serves
	// a canned feed from a file.
	Kind string `yaml:"kind" validate:"required,oneof=http ws mock"`
	URL  string `yaml:"url" validate:"omitempty,url"`
	// FeedFile is the canned feed for mock sources.
	FeedFile      string `yaml:"feedFile"`
	PollIntervalS int    `yaml:"pollIntervalS" validate:"gte=0"`
}

// StorageConfig contains message cache persistence configuration.
type StorageConfig struct {
	// CachePath is where the decoded message cache is persisted. Empty
	// disables persistence.
	CachePath string `yaml:"cachePath"`
}

// ManagerConfig tunes the traffic manager's worker.
type ManagerConfig struct {
	UpdateIntervalS      int `yaml:"updateIntervalS" validate:"gte=0"`
	RenderThrottleS      int `yaml:"renderThrottleS" validate:"gte=0"`
	RouteThrottleS       int `yaml:"routeThrottleS" validate:"gte=0"`
	PositionSquareM      int `yaml:"positionSquareM" validate:"gte=0"`
	NetworkErrorTimeoutS int `yaml:"networkErrorTimeoutS" validate:"gte=0"`
}

// ServerConfig contains the monitoring server configuration.
type ServerConfig struct {
	// Port is where /api/health is served. 0 disables the server.
	Port int `yaml:"port" validate:"gte=0"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Server  ServerConfig   `yaml:"server"`
	Sources []SourceConfig `yaml:"sources"`
	Storage StorageConfig  `yaml:"storage"`
	Manager ManagerConfig  `yaml:"manager"`
}
