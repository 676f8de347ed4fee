package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	SourceURL     string `yaml:"source_url"`
	SourceUser    string `yaml:"source_user"`
	SourceToken   string `yaml:"source_token"`
	SourceProject string `yaml:"source_project"`

	DestURL     string `yaml:"dest_url"` // https://dev.azure.com/{org}
	DestToken   string `yaml:"dest_token"`
	DestProject string `yaml:"dest_project"`

	DBPath      string `yaml:"db_path"`
	MappingFile string `yaml:"mapping_file"`
	PageSize    int    `yaml:"page_size"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/wrkmig/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		PageSize: 50,
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// Load ~/.config/wrkmig/config.yaml if it exists
	if err := loadYAMLConfig(cfg); err != nil {
		// YAML config is optional, so we don't fail if it doesn't exist
	}

	// Override with environment variables
	if v := os.Getenv("WRKMIG_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}
	if v := os.Getenv("WRKMIG_SOURCE_USER"); v != "" {
		cfg.SourceUser = v
	}
	if v := getEnvOrFile("WRKMIG_SOURCE_TOKEN", "WRKMIG_SOURCE_TOKEN_FILE"); v != "" {
		cfg.SourceToken = v
	}
	if v := os.Getenv("WRKMIG_SOURCE_PROJECT"); v != "" {
		cfg.SourceProject = v
	}
	if v := os.Getenv("WRKMIG_DEST_URL"); v != "" {
		cfg.DestURL = v
	}
	if v := getEnvOrFile("WRKMIG_DEST_TOKEN", "WRKMIG_DEST_TOKEN_FILE"); v != "" {
		cfg.DestToken = v
	}
	if v := os.Getenv("WRKMIG_DEST_PROJECT"); v != "" {
		cfg.DestProject = v
	}
	if v := os.Getenv("WRKMIG_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("WRKMIG_MAPPING_FILE"); v != "" {
		cfg.MappingFile = v
	}

	// Set defaults if not configured
	if cfg.DBPath == "" {
		// Check for project-local database first
		if _, err := os.Stat(".wrkmig/checkpoints.db"); err == nil {
			cfg.DBPath = ".wrkmig/checkpoints.db"
		} else {
			// Fall back to user-global database
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			cfg.DBPath = filepath.Join(homeDir, ".local", "share", "wrkmig", "checkpoints.db")
		}
	}

	return cfg, nil
}

// Validate checks that the fields a real migration run needs are present.
// Commands that only read the checkpoint database skip this.
func (c *Config) Validate() error {
	var missing []string
	if c.SourceURL == "" {
		missing = append(missing, "source_url")
	}
	if c.SourceProject == "" {
		missing = append(missing, "source_project")
	}
	if c.DestURL == "" {
		missing = append(missing, "dest_url")
	}
	if c.DestProject == "" {
		missing = append(missing, "dest_project")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %v (set WRKMIG_* env vars or ~/.config/wrkmig/config.yaml)", missing)
	}
	return nil
}

// loadYAMLConfig loads configuration from ~/.config/wrkmig/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "wrkmig", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return string(data)
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Clean paths for reliable comparison
	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		// Stop if we've reached home directory
		if dir == homeDir {
			break
		}

		// Get parent directory
		parent := filepath.Dir(dir)

		// Stop if we've reached the filesystem root
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
