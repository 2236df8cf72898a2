// Package cli holds the boctl process configuration and the credential
// store wiring shared by all commands.
package cli

import (
	"os"
	"path/filepath"
)

type Config struct {
	ServerURL string // Required: base URL of the back-office API
	Scope     string // Optional: scope requested on password grants

	Store      string // Optional: credential store driver (file, sealed, memory, redis, sqlite) (default: file)
	CredFile   string // Optional: path of the file/sealed store (default: ~/.config/boctl/credentials.json)
	Passphrase string // Required for the sealed store: encryption passphrase
	RedisAddr  string // Optional: redis address for the redis store (default: localhost:6379)
	RedisOwner string // Optional: key prefix for the redis store (default: boctl)
	SQLiteFile string // Optional: path of the sqlite store (default: ~/.config/boctl/credentials.db)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	return Config{
		ServerURL:  getEnvOrDefault("BACKOFFICE_SERVER_URL", "http://localhost:5000"),
		Scope:      os.Getenv("BACKOFFICE_SCOPE"),
		Store:      getEnvOrDefault("BACKOFFICE_CRED_STORE", "file"),
		CredFile:   getEnvOrDefault("BACKOFFICE_CRED_FILE", defaultPath("credentials.json")),
		Passphrase: os.Getenv("BACKOFFICE_CRED_PASSPHRASE"),
		RedisAddr:  getEnvOrDefault("BACKOFFICE_REDIS_ADDR", "localhost:6379"),
		RedisOwner: getEnvOrDefault("BACKOFFICE_REDIS_OWNER", "boctl"),
		SQLiteFile: getEnvOrDefault("BACKOFFICE_SQLITE_FILE", defaultPath("credentials.db")),
		Env:        getEnvOrDefault("ENV", "dev"),
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:  getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// defaultPath places store files under the user's config directory, falling
// back to the working directory when the home cannot be resolved.
func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".config", "boctl", name)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
