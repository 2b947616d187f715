package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the process environment if one exists
// in the working directory, mirroring cmd/alex-server's
// runtimeconfig.LoadDotEnv call at startup. A missing file is not an error.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load()
}
