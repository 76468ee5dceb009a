package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. UNREVIEWED_GITHUBORG.
const EnvPrefix = "UNREVIEWED"

// DefaultCacheExpiry is used when no cacheExpiry is configured.
const DefaultCacheExpiry = "60 minutes"

// Settings is the effective configuration of one invocation. It is resolved
// once and passed by value; nothing re-reads configuration afterwards.
type Settings struct {
	Org         string
	Token       string
	CacheExpiry string
	Authors     []string
	AllRepos    []string
}

// Resolve layers defaults, the file at path, and UNREVIEWED_* environment
// variables, later layers winning. A missing file is not an error.
func Resolve(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault(KeyExpiry, DefaultCacheExpiry)

	for _, key := range Keys() {
		if err := v.BindEnv(key); err != nil {
			return Settings{}, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	return Settings{
		Org:         strings.TrimSpace(v.GetString(KeyOrg)),
		Token:       strings.TrimSpace(v.GetString(KeyToken)),
		CacheExpiry: strings.TrimSpace(v.GetString(KeyExpiry)),
		Authors:     splitValues(v.GetStringSlice(KeyAuthors)),
		AllRepos:    splitValues(v.GetStringSlice(KeyAllRepos)),
	}, nil
}
