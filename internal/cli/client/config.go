package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const (
	envAPIToken = "DOCUHUB_API_TOKEN"
	envAPIURL   = "DOCUHUB_API_URL"

	defaultAPIURL = "http://localhost:8080"
)

// GlobalConfig is the credential file written by `docuhub auth login`.
type GlobalConfig struct {
	APIToken string `json:"api_token"`
	APIURL   string `json:"api_url"`
}

var (
	getConfigDirFunc  = defaultGetConfigDir
	getConfigPathFunc = defaultGetConfigPath
)

func defaultGetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "docuhub"), nil
}

func defaultGetConfigPath() (string, error) {
	configDir, err := getConfigDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

func GetConfigDir() (string, error) {
	return getConfigDirFunc()
}

func GetConfigPath() (string, error) {
	return getConfigPathFunc()
}

// LoadGlobalConfig returns a nil config, not an error, when the file is missing.
func LoadGlobalConfig() (*GlobalConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveGlobalConfig writes the config with 0600 permissions.
func SaveGlobalConfig(config *GlobalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func DeleteGlobalConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

var apiTokenPattern = regexp.MustCompile(`^dhk_[0-9a-fA-F]{64}$`)

// IsValidAPIToken checks the dhk_ + 64 hex format produced by `docuhubd token new`.
func IsValidAPIToken(token string) bool {
	return apiTokenPattern.MatchString(token)
}

// CredentialSource is where the active credentials came from.
type CredentialSource string

const (
	SourceFlag         CredentialSource = "flag"
	SourceEnv          CredentialSource = "env"
	SourceGlobalConfig CredentialSource = "global_config"
	SourceNone         CredentialSource = "none"
)

// Credentials are resolved per field: flag, then environment, then the global
// config file. The URL falls back to the local default.
type Credentials struct {
	Token       string
	URL         string
	TokenSource CredentialSource
}

func ResolveCredentials(flagToken, flagURL string) (Credentials, error) {
	creds := Credentials{Token: flagToken, URL: flagURL, TokenSource: SourceFlag}

	if creds.Token == "" {
		creds.Token = os.Getenv(envAPIToken)
		creds.TokenSource = SourceEnv
	}
	if creds.URL == "" {
		creds.URL = os.Getenv(envAPIURL)
	}

	if creds.Token == "" || creds.URL == "" {
		global, err := LoadGlobalConfig()
		if err != nil {
			return Credentials{}, err
		}
		if global != nil {
			if creds.Token == "" && global.APIToken != "" {
				creds.Token = global.APIToken
				creds.TokenSource = SourceGlobalConfig
			}
			if creds.URL == "" {
				creds.URL = global.APIURL
			}
		}
	}

	if creds.Token == "" {
		creds.TokenSource = SourceNone
	}
	if creds.URL == "" {
		creds.URL = defaultAPIURL
	}
	return creds, nil
}
