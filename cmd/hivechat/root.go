package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-hivechat/internal/infrastructure/config"
)

var (
	cfgFile   string
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "hivechat",
	Short: "Terminal client for the Hive chat backend",
	Long: `hivechat connects to a Hive chat backend over REST and WebSocket,
keeps a local conversation view in sync with server pushes, and lets you
read and send messages from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.hivechat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "backend base URL (overrides config)")
}

// loadConfig layers flag > env > config file > defaults.
func loadConfig() (*config.Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(homeDir(), ".hivechat"))
	}

	v.SetEnvPrefix("HIVECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("reconnect.base", "1s")
	v.SetDefault("reconnect.max", 5)
	v.SetDefault("typing.ttl", "0s")
	v.SetDefault("credential.cache", filepath.Join(homeDir(), ".hivechat", "credentials.json"))
	v.SetDefault("history.path", filepath.Join(homeDir(), ".hivechat", "history"))
	v.SetDefault("ops.addr", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	server := serverURL
	if server == "" {
		server = v.GetString("server.url")
	}
	if server == "" {
		return nil, fmt.Errorf("no server configured: pass --server, set HIVECHAT_SERVER_URL or server.url in the config file")
	}

	base, err := time.ParseDuration(v.GetString("reconnect.base"))
	if err != nil {
		return nil, fmt.Errorf("reconnect.base: %w", err)
	}
	ttl, err := time.ParseDuration(v.GetString("typing.ttl"))
	if err != nil {
		return nil, fmt.Errorf("typing.ttl: %w", err)
	}

	return &config.Config{
		ServerURL:       strings.TrimRight(server, "/"),
		CredentialCache: v.GetString("credential.cache"),
		HistoryPath:     v.GetString("history.path"),
		OpsAddr:         v.GetString("ops.addr"),
		ReconnectBase:   base,
		ReconnectMax:    v.GetInt("reconnect.max"),
		TypingTTL:       ttl,
	}, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
