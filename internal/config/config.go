package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// APIURL is the base URL of the external analysis and scoring webhook.
	// When empty the Gemini backend is used instead.
	APIURL                string `json:"api_url" validate:"omitempty,url"`
	Port                  string `json:"port" validate:"required,numeric"`
	UploadsDir            string `json:"uploads_dir" validate:"required"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" validate:"gte=1,lte=900"`
	MaxCVFiles            int    `json:"max_cv_files" validate:"gte=1,lte=100"`
	GoogleCloudProject    string `json:"google_cloud_project" validate:"required_without=APIURL"`
	GoogleCloudLocation   string `json:"google_cloud_location" validate:"required_without=APIURL"`
	GoogleCredentialsPath string `json:"google_credentials_path"`
	GmailCredentialsPath  string `json:"gmail_credentials_path"`
	GeminiModel           string `json:"gemini_model"`
	LogLevel              string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

const appDirName = "CVAnalyzer"

var validate = validator.New()

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	return &Config{
		Port:                  "8080",
		UploadsDir:            "uploads",
		RequestTimeoutSeconds: 120,
		MaxCVFiles:            10,
		GoogleCloudLocation:   "us-central1",
		GeminiModel:           "gemini-2.5-flash",
		LogLevel:              "info",
	}
}

// GetConfigPath returns the path to the configuration file
// On Windows: %APPDATA%/CVAnalyzer/config.json
// On Unix: ~/.config/CVAnalyzer/config.json
func GetConfigPath() (string, error) {
	var configDir string

	if os.Getenv("APPDATA") != "" {
		configDir = filepath.Join(os.Getenv("APPDATA"), appDirName)
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", appDirName)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load loads configuration from the default config path, then applies
// .env and environment overrides
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFrom(configPath)
}

// LoadFrom loads configuration from a specific path. A missing file yields the
// defaults. Environment overrides are applied on top.
func LoadFrom(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	config.ApplyEnvOverrides()

	return config, nil
}

// LoadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnvOverrides replaces fields with values from the environment
func (c *Config) ApplyEnvOverrides() {
	if v := firstEnv("CV_ANALYZER_API_URL", "VITE_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("CV_ANALYZER_UPLOADS_DIR"); v != "" {
		c.UploadsDir = v
	}
	if v := os.Getenv("CV_ANALYZER_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("CV_ANALYZER_REQUEST_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		c.GoogleCloudProject = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_LOCATION"); v != "" {
		c.GoogleCloudLocation = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		c.GoogleCredentialsPath = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.GeminiModel = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// Save saves the configuration to the default config path
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	return c.SaveTo(configPath)
}

// SaveTo saves the configuration to a specific path
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.GoogleCredentialsPath != "" {
		if _, err := os.Stat(c.GoogleCredentialsPath); err != nil {
			return fmt.Errorf("google credentials file not found: %w", err)
		}
	}

	if c.GmailCredentialsPath != "" {
		if _, err := os.Stat(c.GmailCredentialsPath); err != nil {
			return fmt.Errorf("gmail credentials file not found: %w", err)
		}
	}

	return nil
}

func fieldError(fe validator.FieldError) error {
	name := jsonName(fe.StructField())
	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Errorf("%s is required", name)
	case "url":
		return fmt.Errorf("%s must be a valid URL", name)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", name, fe.Param())
	case "gte", "lte":
		return fmt.Errorf("%s must be between allowed bounds (%s %s)", name, fe.Tag(), fe.Param())
	}
	return fmt.Errorf("%s is invalid (%s)", name, fe.Tag())
}

var jsonNames = map[string]string{
	"APIURL":                "api_url",
	"Port":                  "port",
	"UploadsDir":            "uploads_dir",
	"RequestTimeoutSeconds": "request_timeout_seconds",
	"MaxCVFiles":            "max_cv_files",
	"GoogleCloudProject":    "google_cloud_project",
	"GoogleCloudLocation":   "google_cloud_location",
	"LogLevel":              "log_level",
}

func jsonName(field string) string {
	if n, ok := jsonNames[field]; ok {
		return n
	}
	return field
}

// UseWebhook reports whether an external analysis service is configured
func (c *Config) UseWebhook() bool {
	return strings.TrimSpace(c.APIURL) != ""
}

// RequestTimeout returns the per-call deadline for backend requests
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return ":" + c.Port
}

// ApplyToEnv applies configuration values to environment variables
func (c *Config) ApplyToEnv() {
	if c.GoogleCloudProject != "" {
		os.Setenv("GOOGLE_CLOUD_PROJECT", c.GoogleCloudProject)
	}
	if c.GoogleCloudLocation != "" {
		os.Setenv("GOOGLE_CLOUD_LOCATION", c.GoogleCloudLocation)
	}
	if c.GoogleCredentialsPath != "" {
		os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsPath)
	}
}
