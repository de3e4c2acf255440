package account

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.tello.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tello")
}

// Dir returns the account-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "accounts", name)
}

// LockPath returns the lock file path for an account.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the account-owned tello.db path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "tello.db")
}

// KeyPath returns the wallet seed file path.
func KeyPath(name string) string {
	return filepath.Join(Dir(name), "wallet.key")
}

// LogDir returns the log directory for an account.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the engine log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "tellod.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the account directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
