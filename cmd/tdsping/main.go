// Command tdsping performs the connection handshake against a server and
// reports what it negotiated. It exercises the whole client stack without
// running a query.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tabwire/tds/config"
	"github.com/tabwire/tds/pkg/tds"
	"github.com/tabwire/tds/utils/log"
)

func main() {
	logger, err := log.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := newRootCmd(logger).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	cfg := config.New()
	var (
		configPath string
		debug      bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:           "tdsping",
		Short:         "tdsping checks whether a TDS server accepts a login",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if debug {
				var err error
				logger, err = log.ChangeLogLevel(zap.DebugLevel)
				if err != nil {
					return err
				}
			}
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}
			if configPath != "" {
				viper.SetConfigFile(configPath)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read config file: %w", err)
				}
			}
			if err := viper.Unmarshal(cfg); err != nil {
				return fmt.Errorf("failed to decode configuration: %w", err)
			}
			return cfg.Validate(logger)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			connector := tds.NewConnector(cfg, logger)
			cn, err := connector.Connect(cmd.Context())
			if err != nil {
				color.Red("✗ %s is not reachable: %v", cfg.Addr(), err)
				return err
			}
			defer func() { _ = cn.Close() }()

			session := cn.Session()
			color.Green("✓ %s accepted the login", cfg.Addr())
			fmt.Printf("  server:      %s\n", session.ServerVersion())
			fmt.Printf("  database:    %s\n", session.Database)
			fmt.Printf("  packet size: %d\n", session.PacketSize)
			fmt.Printf("  encrypted:   %v\n", session.Encrypted)
			if verbose {
				printer := pp.New()
				printer.SetColoringEnabled(!color.NoColor)
				_, _ = printer.Println(session)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.Host, "host", cfg.Host, "server host to connect to")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "server port")
	flags.StringVar(&cfg.Instance, "instance", cfg.Instance, "named instance to request during prelogin")
	flags.StringVar(&cfg.User, "user", cfg.User, "login user name")
	flags.StringVar(&cfg.Password, "password", cfg.Password, "login password")
	flags.StringVar(&cfg.Database, "database", cfg.Database, "initial database")
	flags.StringVar(&cfg.AppName, "appName", cfg.AppName, "application name reported to the server")
	flags.StringVar(&cfg.Encrypt, "encrypt", cfg.Encrypt, "encryption mode: off, on, required or disable")
	flags.BoolVar(&cfg.MARS, "mars", cfg.MARS, "request multiple active result sets")
	flags.IntVar(&cfg.PacketSize, "packetSize", cfg.PacketSize, "requested packet size in bytes")
	flags.DurationVar(&cfg.ConnectTimeout, "connectTimeout", cfg.ConnectTimeout, "overall budget for the connection, retries included")
	flags.DurationVar(&cfg.RetryInterval, "retryInterval", cfg.RetryInterval, "pause between attempts")
	flags.IntVar(&cfg.MaxRetries, "maxRetries", cfg.MaxRetries, "retries after the first attempt")
	flags.StringVar(&configPath, "config", "", "path to a YAML configuration file")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	flags.BoolVarP(&verbose, "verbose", "v", false, "dump the full negotiated session")

	return cmd
}
