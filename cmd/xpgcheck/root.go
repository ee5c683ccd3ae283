package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/go-mizu/xpg"
	"github.com/go-mizu/xpg/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"xorkevin.dev/kerrors"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type (
	Cmd struct {
		rootCmd    *cobra.Command
		rootFlags  rootFlags
		checkFlags checkFlags
		log        *zap.Logger
	}

	rootFlags struct {
		cfgFile   string
		debugMode bool
	}
)

func New() *Cmd {
	return &Cmd{
		log: zap.NewNop(),
	}
}

func (c *Cmd) Execute() {
	rootCmd := &cobra.Command{
		Use:   "xpgcheck",
		Short: "A PostgreSQL schema checker",
		Long: `A PostgreSQL schema checker that loads user-defined types from the
catalog and verifies record shapes against live tables.`,
		PersistentPreRunE: c.initConfig,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}
	rootCmd.PersistentFlags().StringVar(&c.rootFlags.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/.xpg.yaml)")
	rootCmd.PersistentFlags().BoolVar(&c.rootFlags.debugMode, "debug", false, "turn on debug output")
	rootCmd.PersistentFlags().String("dsn", "", "database connection string")
	rootCmd.PersistentFlags().String("driver", config.DriverPQ, "database/sql driver (postgres or pgx)")
	rootCmd.PersistentFlags().Int("maxconns", 10, "max open connections")
	for _, k := range []string{config.KeyDSN, config.KeyDriver, config.KeyMaxConns, config.KeyDebug} {
		if err := viper.BindPFlag(k, rootCmd.PersistentFlags().Lookup(k)); err != nil {
			log.Fatalln(err)
		}
	}
	c.rootCmd = rootCmd

	rootCmd.AddCommand(c.getCheckCmd())
	rootCmd.AddCommand(c.getDemoCmd())

	if err := rootCmd.Execute(); err != nil {
		_ = c.log.Sync()
		log.Fatalln(err)
	}
	_ = c.log.Sync()
}

// initConfig reads in config file and ENV variables if set.
func (c *Cmd) initConfig(cmd *cobra.Command, args []string) error {
	if c.rootFlags.cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(c.rootFlags.cfgFile)
	} else {
		viper.SetConfigName(".xpg")
		viper.AddConfigPath(".")

		// Search config in XDG_CONFIG_HOME directory with name ".xpg" (without extension).
		if cfgdir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(cfgdir)
		}
	}

	viper.SetEnvPrefix("XPG")
	viper.AutomaticEnv() // read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))

	configErr := viper.ReadInConfig()

	logger, err := newLogger(viper.GetBool(config.KeyDebug))
	if err != nil {
		return kerrors.WithMsg(err, "Failed to initialize logger")
	}
	c.log = logger
	if configErr == nil {
		c.log.Debug("Using config file", zap.String("file", viper.ConfigFileUsed()))
	} else {
		c.log.Debug("Failed reading config file", zap.Error(configErr))
	}
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		z := zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stderr"}
		return z.Build()
	}
	return zap.NewProduction()
}

func (c *Cmd) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, kerrors.WithMsg(err, "Invalid configuration")
	}
	return cfg, nil
}

func (c *Cmd) connect(ctx context.Context, cfg *config.Config) (*xpg.Pool, error) {
	pool, err := xpg.Connect(ctx, cfg.Driver, cfg.DSN, cfg.MaxConns, xpg.WithLogger(c.log))
	if err != nil {
		return nil, err
	}
	return pool, nil
}
