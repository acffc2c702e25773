package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	suraksh "github.com/Ayush-3103-AI/Suraksh"
	"github.com/Ayush-3103-AI/Suraksh/ledger"
	"github.com/Ayush-3103-AI/Suraksh/persist"
)

var (
	cfgFile  string
	vaultSvc suraksh.VaultService
	log      = logrus.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "suraksh",
	Short: "A clearance-stratified secure document vault",
	Long: `A clearance-stratified document vault. Artifacts are chunked and
encrypted under per-file keys wrapped to clearance tiers, layered CLSD
documents expose sections per tier, and every operation is appended to
a hash-chained audit ledger.`,
	SilenceUsage:      true,
	PersistentPreRunE: initializeVault,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if vaultSvc != nil {
			return vaultSvc.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.suraksh.yaml)")
	rootCmd.PersistentFlags().StringP("vault-path", "p", "", "path to vault storage")
	rootCmd.PersistentFlags().String("store-type", "", "storage backend type (file, s3, badger)")
	rootCmd.PersistentFlags().String("ledger-path", "", "audit ledger file path")
	rootCmd.PersistentFlags().StringP("user", "u", "", "acting user ID")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	bindFlagOrPanic("vault.path", "vault-path")
	bindFlagOrPanic("vault.store_type", "store-type")
	bindFlagOrPanic("vault.ledger_path", "ledger-path")
	bindFlagOrPanic("vault.user", "user")
	bindFlagOrPanic("vault.log_level", "log-level")

	// S3 flags (for direct CLI usage)
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3 endpoint URL")
	rootCmd.PersistentFlags().String("s3-region", "", "S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().String("s3-prefix", "", "S3 key prefix")
	rootCmd.PersistentFlags().String("s3-access-key", "", "S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-use-ssl", true, "Use SSL for S3 connections")

	bindFlagOrPanic("vault.s3.endpoint", "s3-endpoint")
	bindFlagOrPanic("vault.s3.region", "s3-region")
	bindFlagOrPanic("vault.s3.bucket", "s3-bucket")
	bindFlagOrPanic("vault.s3.prefix", "s3-prefix")
	bindFlagOrPanic("vault.s3.access_key_id", "s3-access-key")
	bindFlagOrPanic("vault.s3.secret_access_key", "s3-secret-key")
	bindFlagOrPanic("vault.s3.use_ssl", "s3-use-ssl")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")

		viper.SetConfigType("yaml")
		viper.SetConfigName(".suraksh")
	}

	viper.SetEnvPrefix("SURAKSH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found is OK - defaults and env vars apply
	}
}

func setDefaults() {
	viper.SetDefault("vault.path", ".suraksh")
	viper.SetDefault("vault.store_type", "file")
	viper.SetDefault("vault.log_level", "warn")

	viper.SetDefault("vault.s3.region", "us-east-1")
	viper.SetDefault("vault.s3.prefix", "suraksh/")
	viper.SetDefault("vault.s3.use_ssl", true)
}

func initializeVault(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
		return nil
	}

	level, err := logrus.ParseLevel(viper.GetString("vault.log_level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)

	vaultPath := viper.GetString("vault.path")
	if err = os.MkdirAll(vaultPath, 0700); err != nil {
		return fmt.Errorf("failed to create vault directory: %w", err)
	}

	store, err := createStore(viper.GetString("vault.store_type"), vaultPath)
	if err != nil {
		return err
	}

	ledgerPath := viper.GetString("vault.ledger_path")
	if ledgerPath == "" {
		ledgerPath = filepath.Join(vaultPath, "ledger.jsonl")
	}
	led, err := ledger.NewFileLedger(ledgerPath)
	if err != nil {
		return fmt.Errorf("failed to open audit ledger: %w", err)
	}

	vaultSvc, err = suraksh.NewWithStore(suraksh.Options{Logger: log}, store, led)
	if err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}
	return nil
}

func createStore(storeType, vaultPath string) (persist.Store, error) {
	switch strings.ToLower(storeType) {
	case "file":
		return persist.NewFileSystemStore(filepath.Join(vaultPath, "store"))

	case "badger":
		return persist.NewBadgerStore(filepath.Join(vaultPath, "badger"), log)

	case "s3":
		s3Config := persist.S3Config{
			Endpoint:        viper.GetString("vault.s3.endpoint"),
			AccessKeyID:     viper.GetString("vault.s3.access_key_id"),
			SecretAccessKey: viper.GetString("vault.s3.secret_access_key"),
			Bucket:          viper.GetString("vault.s3.bucket"),
			KeyPrefix:       viper.GetString("vault.s3.prefix"),
			UseSSL:          viper.GetBool("vault.s3.use_ssl"),
			Region:          viper.GetString("vault.s3.region"),
		}
		if err := validateS3Config(s3Config); err != nil {
			return nil, fmt.Errorf("invalid S3 configuration: %w", err)
		}
		return persist.NewS3Store(s3Config)

	default:
		return nil, fmt.Errorf("unsupported store type: %s. Supported types: file, s3, badger", storeType)
	}
}

func validateS3Config(config persist.S3Config) error {
	var missing []string

	if config.Endpoint == "" {
		missing = append(missing, "vault.s3.endpoint")
	}
	if config.Bucket == "" {
		missing = append(missing, "vault.s3.bucket")
	}

	hasAccessKey := config.AccessKeyID != ""
	hasSecretKey := config.SecretAccessKey != ""
	if hasAccessKey && !hasSecretKey {
		missing = append(missing, "vault.s3.secret_access_key")
	}
	if !hasAccessKey && hasSecretKey {
		missing = append(missing, "vault.s3.access_key_id")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// actingUser resolves the --user flag; most commands require it.
func actingUser() (string, error) {
	userID := viper.GetString("vault.user")
	if userID == "" {
		return "", fmt.Errorf("acting user is required. Use --user flag or SURAKSH_VAULT_USER environment variable")
	}
	return userID, nil
}
