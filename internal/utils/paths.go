package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDirName is the per-user directory holding configuration, the sealed
// credential and the receipt log.
const DataDirName = ".qrpay"

// DefaultDataDir returns ~/.qrpay, or ./.qrpay when the home directory is
// unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDirName
	}
	return filepath.Join(home, DataDirName)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
