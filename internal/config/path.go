package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir is where segments, staging files and metadata live when the
// configuration names no folder. RAWDATA_DATA_DIR overrides the per-OS choice:
//
//	linux   $XDG_DATA_HOME/rawdata, else ~/.local/share/rawdata
//	darwin  ~/Library/Application Support/Rawdata
//	windows %LOCALAPPDATA%\Rawdata
//
// Without a home directory it is ./data.
func DefaultDataDir() string {
	if dir := os.Getenv("RAWDATA_DATA_DIR"); dir != "" {
		return dir
	}
	return osDataDir(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

func osDataDir(goos string, getenv func(string) string, home func() (string, error)) string {
	switch goos {
	case "windows":
		if local := getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "Rawdata")
		}
	case "darwin":
	default:
		if xdg := getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "rawdata")
		}
	}
	h, err := home()
	if err != nil || h == "" {
		return "./data"
	}
	switch goos {
	case "darwin":
		return filepath.Join(h, "Library", "Application Support", "Rawdata")
	case "windows":
		return filepath.Join(h, "AppData", "Local", "Rawdata")
	default:
		return filepath.Join(h, ".local", "share", "rawdata")
	}
}
