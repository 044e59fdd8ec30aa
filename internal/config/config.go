package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. UMDPACK_WASM_MEMORY_PAGES.
const EnvPrefix = "UMDPACK"

type ToolConfig struct {
	LogLevel   string     `mapstructure:"log_level"`
	Descriptor string     `mapstructure:"descriptor"`
	Verify     bool       `mapstructure:"verify"`
	Metafile   string     `mapstructure:"metafile"`
	Wasm       WasmConfig `mapstructure:"wasm"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Compile every .wasm asset at build time.
	Validate bool `mapstructure:"validate"`
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug logging.
	Debug bool `mapstructure:"debug"`
}

func LoadToolConfig(configPath string) (*ToolConfig, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("descriptor", "build.yaml")
	v.SetDefault("verify", false)
	v.SetDefault("metafile", "")

	// Wasm defaults
	v.SetDefault("wasm.validate", true)
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg ToolConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
