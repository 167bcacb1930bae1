package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/app"
	"github.com/rohanthewiz/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// v layers flags over CANVASS_* environment variables over the config file.
var v *viper.Viper

var (
	cfgFile    string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "canvass",
	Short: "Canvass - offline-first field sales CLI",
	Long: `Canvass keeps a field rep's leads, check-ins and appointments on the device
and mirrors them to a shared document store when signed in.

Everything works offline. Sign in to push local data and to receive
appointments scheduled from other devices.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := readConfigFile(); err != nil {
			return err
		}
		logger.SetLogLevel(v.GetString("log_level"))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: ~/.canvass/config.yaml)")
	flags.String("profile", "", "Local profile (default: $CANVASS_PROFILE or \"default\")")
	flags.String("db-path", "", "Path to the local database (overrides the profile path)")
	flags.String("remote-url", "", "URL of a canvass document server")
	flags.String("remote-dir", "", "Directory used as a file-backed document store")
	flags.String("api-key", "", "API key for the document server")
	flags.String("log-level", "warn", "Log level: debug, info, warn, error")
	flags.Bool("debug", false, "Trace remote document traffic to stderr")
	flags.BoolVar(&outputJSON, "json", false, "Output as JSON")

	v = newViper(flags)
}

// newViper binds the persistent flags and CANVASS_* environment variables.
func newViper(flags *pflag.FlagSet) *viper.Viper {
	cv := viper.New()
	for _, name := range []string{"profile", "db-path", "remote-url", "remote-dir", "api-key", "log-level", "debug"} {
		_ = cv.BindPFlag(configKey(name), flags.Lookup(name))
	}
	cv.SetEnvPrefix("CANVASS")
	cv.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	cv.AutomaticEnv()
	// Keys that only come from env or the config file.
	for _, key := range []string{"jwt_secret", "sync_interval", "debug_log", "auto_sync", "password"} {
		_ = cv.BindEnv(key)
	}
	cv.SetDefault("auto_sync", true)
	return cv
}

func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

func readConfigFile() error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(home, ".canvass"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func loadConfig() canvass.Config {
	return canvass.Config{
		LocalPath:    v.GetString("db_path"),
		Profile:      v.GetString("profile"),
		RemoteURL:    v.GetString("remote_url"),
		RemoteDir:    v.GetString("remote_dir"),
		APIKey:       v.GetString("api_key"),
		JWTSecret:    v.GetString("jwt_secret"),
		SyncInterval: v.GetDuration("sync_interval"),
		AutoSync:     v.GetBool("auto_sync"),
		LogLevel:     v.GetString("log_level"),
		Debug:        v.GetBool("debug"),
		DebugLogPath: v.GetString("debug_log"),
	}.WithDefaults()
}

func loadAndValidateConfig() (canvass.Config, error) {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// openApp builds and starts the application for one command. The caller
// must Close it.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := a.Start(cmd.Context()); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("start: %w", err)
	}
	return a, nil
}
