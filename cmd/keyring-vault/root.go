package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hengadev/vaultkeyring"
	"github.com/hengadev/vaultkeyring/internal/monitoring"
)

// cli holds the state shared by every subcommand of one invocation.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string
	maxRetries int
	breaker    int

	logger  *monitoring.StructuredLogger
	keyring *vaultkeyring.Keyring
}

// offline commands never contact Vault.
const offlineAnnotation = "offline"

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "keyring-vault",
		Short: "Manage keyring keys stored in a HashiCorp Vault KV engine",
		Long: `keyring-vault lists, reads, stores, generates and removes the keys a database
keyring keeps in a Vault KV secret engine (v1 or v2, detected automatically).

Credentials are read from the file given with --config. Without it they come
from VAULT_ADDR, VAULT_TOKEN, VAULT_CACERT and the KEYRING_VAULT_* variables.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  c.open,
		PersistentPostRunE: c.close,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "keyring credentials file (key=value or YAML)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error (default from KEYRING_VAULT_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "log format: json or text (default from KEYRING_VAULT_LOG_FORMAT)")
	rootCmd.PersistentFlags().IntVar(&c.maxRetries, "max-retries", 0, "retries for requests failing with 5xx or 429")
	rootCmd.PersistentFlags().IntVar(&c.breaker, "circuit-breaker", 0, "fail fast after this many consecutive Vault failures (0 disables)")

	rootCmd.AddCommand(
		c.newListCmd(),
		c.newFetchCmd(),
		c.newStoreCmd(),
		c.newRemoveCmd(),
		c.newGenerateCmd(),
		c.newResolveCmd(),
		c.newHealthCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func (c *cli) open(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[offlineAnnotation] == "true" {
		return nil
	}

	c.logger = c.newLogger(cmd)

	var (
		creds vaultkeyring.Credentials
		err   error
	)
	if c.configPath != "" {
		creds, err = vaultkeyring.LoadCredentialsFile(c.configPath)
	} else {
		creds, err = vaultkeyring.LoadCredentialsFromEnvironment()
	}
	if err != nil {
		return err
	}

	opts := []vaultkeyring.Option{
		vaultkeyring.WithLogger(c.logger),
		vaultkeyring.WithMaxRetries(c.maxRetries),
	}
	if c.breaker > 0 {
		opts = append(opts, vaultkeyring.WithCircuitBreaker(c.breaker, 30*time.Second))
	}
	c.keyring, err = vaultkeyring.New(cmd.Context(), creds, opts...)
	return err
}

func (c *cli) close(cmd *cobra.Command, args []string) error {
	if c.keyring != nil {
		return c.keyring.Close()
	}
	return nil
}

func (c *cli) newLogger(cmd *cobra.Command) *monitoring.StructuredLogger {
	if c.logLevel == "" && c.logFormat == "" {
		return monitoring.NewProductionLogger("keyring-vault").WithFields(map[string]any{"command": cmd.Name()})
	}

	level := c.logLevel
	if level == "" {
		level = os.Getenv("KEYRING_VAULT_LOG_LEVEL")
	}
	format := monitoring.FormatJSON
	if c.logFormat == "text" {
		format = monitoring.FormatText
	}
	return monitoring.NewStructuredLogger(monitoring.LoggerConfig{
		Level:     monitoring.ParseLogLevel(level),
		Format:    format,
		Output:    cmd.ErrOrStderr(),
		Component: "keyring-vault",
		Fields:    map[string]any{"command": cmd.Name()},
	})
}
