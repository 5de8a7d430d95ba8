package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/pirakansa/compinst/internal/cli/logging"
	"github.com/pirakansa/compinst/internal/transport"
	"github.com/pirakansa/compinst/pkg/installconf"
)

// EnvPrefix marks environment variables overriding configuration keys.
// A double underscore separates nested keys: COMPINST_PROXY__HTTPS.
const EnvPrefix = "COMPINST_"

const remoteConfigTimeout = 30 * time.Second

// Load reads the installation configuration from a local file or an
// http(s) location, applies environment overrides, normalizes and validates.
func Load(location string) (*installconf.InstallConfig, error) {
	k := koanf.New(".")

	if installconf.IsRemoteConfigLocation(location) {
		content, err := readRemoteConfig(location)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config from %s: %w", location, err)
		}
	} else if err := k.Load(file.Provider(location), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", location, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	var cfg installconf.InstallConfig
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "yaml",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	installconf.NormalizeInstallConfig(&cfg)
	if err := installconf.ValidateInstallConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// readRemoteConfig fetches the configuration through the transport client so
// environment proxies and a bounded timeout apply.
func readRemoteConfig(location string) ([]byte, error) {
	client := transport.New(transport.Options{
		Timeout: remoteConfigTimeout,
		Logger:  logging.GetLogger("config"),
	})
	content, err := client.Fetch(context.Background(), transport.Request{URL: location})
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return content, nil
}
