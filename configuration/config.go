package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	prefix = "MDM_AGENT"

	server        = "SERVER"
	storePath     = "STORE"
	documentsRoot = "DOCUMENTS"
	deviceID      = "DEVICE_ID"
	osVersion     = "OS_VERSION"

	locationLatitude  = "LOCATION_LATITUDE"
	locationLongitude = "LOCATION_LONGITUDE"

	failRevertDelay        = "FAIL_REVERT_DELAY"
	defaultFailRevertDelay = 4 * time.Second

	httpTimeout        = "HTTP_TIMEOUT"
	defaultHttpTimeout = 5 * time.Second
)

var v *viper.Viper

func InitConfiguration(cmd *cobra.Command, configFile string) error {
	v = viper.New()

	v.SetEnvPrefix(prefix)
	v.AutomaticEnv() // read in environment variables that match

	if len(configFile) > 0 {
		zap.S().Infof("using config file: %v", configFile)
		v.SetConfigFile(configFile)

		err := v.ReadInConfig()
		if err != nil {
			zap.S().Errorw("error", err, "config file", configFile)
			return fmt.Errorf("fail to read config file")
		}
	}

	// Bind the current command's flags to viper
	bindFlags(cmd, v)

	return nil
}

// Bind each cobra flag to its associated viper configuration (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// replace - with _ to match yaml format
		flagName := f.Name
		if strings.Contains(f.Name, "-") {
			// Environment variables can't have dashes in them, so bind them to their equivalent
			// keys with underscores.
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			v.BindEnv(f.Name, fmt.Sprintf("%s_%s", prefix, envVarSuffix))
			flagName = strings.ReplaceAll(f.Name, "-", "_")
		}

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		// and the other way around.
		if !f.Changed && v.IsSet(flagName) {
			val := v.Get(flagName)
			cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val))
		} else if f.Changed && !v.IsSet(flagName) {
			v.Set(flagName, f.Value)
		}
	})
}

// GetDeviceSerial returns the stable per-installation device identifier.
func GetDeviceSerial() string {
	if !v.IsSet(deviceID) {
		id, err := machineid.ID()
		if err != nil {
			id = uuid.New().String()
		}

		// save id for the next call
		v.Set(deviceID, id)

		return id
	}

	return v.GetString(deviceID)
}

func GetServerAddress() string {
	return v.GetString(server)
}

func GetStorePath() string {
	if !v.IsSet(storePath) {
		return filepath.Join(defaultDataDir(), "agent.db")
	}

	return v.GetString(storePath)
}

// GetDocumentsRoot returns the local document area the fleet file commands
// operate on.
func GetDocumentsRoot() string {
	if !v.IsSet(documentsRoot) {
		return filepath.Join(defaultDataDir(), "documents")
	}

	return v.GetString(documentsRoot)
}

func GetOSVersion() string {
	if !v.IsSet(osVersion) {
		return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	}

	return v.GetString(osVersion)
}

func GetHttpRequestTimeout() time.Duration {
	if !v.IsSet(httpTimeout) {
		return defaultHttpTimeout
	}

	return v.GetDuration(httpTimeout)
}

// GetFailRevertDelay returns how long the enrollment failure state is held
// before reverting to the initial state.
func GetFailRevertDelay() time.Duration {
	if !v.IsSet(failRevertDelay) {
		return defaultFailRevertDelay
	}

	return v.GetDuration(failRevertDelay)
}

func GetLocation() (latitude, longitude float64) {
	return v.GetFloat64(locationLatitude), v.GetFloat64(locationLongitude)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".mdm-agent")
}
