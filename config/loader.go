package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the global application configuration
var Config AppConfig

// LoadAppConfig loads and validates the application configuration from config.yml
func LoadAppConfig() error {
	paths := []string{"config.yml", "/etc/traff-go/config.yml"}
	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	v := validator.New()
	// sources are optional; if present validate each
	for _, s := range cfg.Sources {
		if err := v.Struct(s); err != nil {
			return err
		}
	}
	if err := v.Struct(cfg.Manager); err != nil {
		return err
	}
	Config = cfg
	if Config.Manager.UpdateIntervalS == 0 {
		Config.Manager.UpdateIntervalS = 60
	}
	if Config.Manager.RenderThrottleS == 0 {
		Config.Manager.RenderThrottleS = 10
	}
	if Config.Manager.RouteThrottleS == 0 {
		Config.Manager.RouteThrottleS = 60
	}
	if Config.Manager.PositionSquareM == 0 {
		Config.Manager.PositionSquareM = 5000
	}
	if Config.Manager.NetworkErrorTimeoutS == 0 {
		Config.Manager.NetworkErrorTimeoutS = 1200
	}
	return nil
}

// SelectSource chooses a source by name; fallback to first.
func SelectSource(name string) (SourceConfig, bool) {
	if name != "" {
		for _, s := range Config.Sources {
			if s.Name == name {
				return s, true
			}
		}
		return SourceConfig{}, false
	}
	if len(Config.Sources) > 0 {
		return Config.Sources[0], true
	}
	return SourceConfig{}, false
}
