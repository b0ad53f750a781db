package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/lukasz26671/webaudioprov/internal/api"
	"github.com/lukasz26671/webaudioprov/internal/fetch"
	"github.com/lukasz26671/webaudioprov/internal/history"
	"github.com/lukasz26671/webaudioprov/internal/policy"
	"github.com/mitchellh/go-homedir"
)

// AppConfig is the struct used to contain the various user config,
// supplied entirely via environment variables.
type AppConfig struct {
	Limits       policy.Limits
	Fetch        fetch.Config
	Rest         api.RestConfig
	Database     history.Config
	CacheDirPath string `env:"CACHE_DIR"`
}

// LoadFromEnv populates the config from the process environment, expands
// any user-relative paths and applies the working directory defaults
// before validating the result.
func (config *AppConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment - %v", err.Error())
	}

	if config.Fetch.WorkDir == "" {
		dir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to derive working directory - %v", err.Error())
		}

		config.Fetch.WorkDir = dir
	} else {
		dir, err := homedir.Expand(config.Fetch.WorkDir)
		if err != nil {
			return fmt.Errorf("failed to expand working directory - %v", err.Error())
		}

		config.Fetch.WorkDir = dir
	}

	if config.CacheDirPath != "" {
		dir, err := homedir.Expand(config.CacheDirPath)
		if err != nil {
			return fmt.Errorf("failed to expand cache directory - %v", err.Error())
		}

		config.CacheDirPath = dir
	}

	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("configuration is invalid - %v", err.Error())
	}

	return nil
}

// CacheDir returns the directory path used for storing materialized media.
// It will first look in the config for a value; if none is found the
// 'temp' directory under the working dir is used.
func (config *AppConfig) CacheDir() string {
	if config.CacheDirPath != "" {
		return config.CacheDirPath
	}

	return filepath.Join(config.Fetch.WorkDir, "temp")
}
