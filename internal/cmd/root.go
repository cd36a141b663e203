package cmd

import (
	"errors"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zdiemer/simplescraper/internal/config"
	"github.com/zdiemer/simplescraper/internal/observability"
	"github.com/zdiemer/simplescraper/internal/server/handlers"
)

// binaryName is used for help text and logger service names.
const binaryName = "simplescraper"

var (
	cfgFile  string
	envFiles []string
	verbose  bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   binaryName,
	Short: "Polite HTTP fetching with rate limits, backoff and caching",
	Long: `simplescraper fetches pages and APIs politely: requests are spaced per host
or route, failures back off exponentially, successful responses are cached and
requests can carry a rotating browser identity or go through a proxy pool.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./simplescraper.yaml or ./config/simplescraper.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to load env file", err)
	}

	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.SetConfigName(binaryName)
		v.SetConfigType("yaml")
	}
	config.Bind(v)

	configErr := v.ReadInConfig()

	if err := observability.InitCLILogger(binaryName, v.GetString("logging.level"), verbose); err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize logger", err)
	}

	if configErr == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", v.ConfigFileUsed()))
		return
	}

	var notFound viper.ConfigFileNotFoundError
	switch {
	case errors.As(configErr, &notFound):
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	case cfgFile != "":
		ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Failed to read config file", configErr)
	default:
		observability.CLILogger.Warn("Error reading config file", zap.Error(configErr))
	}
}

// loadConfig decodes the merged settings or exits with a config error.
func loadConfig() *config.Config {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", err)
	}
	return cfg
}
