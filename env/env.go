package env

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const (
	DefaultEnvFile = ".env"
	// EnvFileVar names the variable that points at an alternative env file.
	EnvFileVar = "BULKMAIL_ENV_FILE"
)

// EnvFile returns the env file InitConfig loads.
func EnvFile() string {
	if p := os.Getenv(EnvFileVar); p != "" {
		return p
	}
	return DefaultEnvFile
}

// InitConfig loads the env file, if any, and fills config from the environment.
// Variables already set in the environment win over the file.
func InitConfig(config any) error {
	return InitConfigPrefix("", config)
}

// InitConfigPrefix is InitConfig with an envconfig prefix.
func InitConfigPrefix(prefix string, config any) error {
	// nolint:errcheck // the env file is optional
	_ = godotenv.Load(EnvFile())

	if err := envconfig.Process(prefix, config); err != nil {
		return errors.Wrap(err, "failed to envconfig.Process")
	}

	return nil
}
