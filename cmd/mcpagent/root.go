package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mcpagent/internal/buildinfo"
	"mcpagent/internal/config"
	"mcpagent/internal/mcp"
	"mcpagent/internal/sse"
)

var (
	flagConfig   string
	flagProvider string
	flagModel    string
	flagAPIKey   string
	flagMCPURL   string
	flagDebug    bool
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mcpagent",
	Short: "LLM agent for MCP tool servers",
	Long: `mcpagent connects an LLM (OpenAI or Anthropic) to an MCP tool
server. The agent discovers the server's tools, lets the model invoke
them during chat turns, and streams responses back to the terminal.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = buildinfo.Version
	rootCmd.SetVersionTemplate(`{{printf "mcpagent version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default: auto-discover)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "LLM provider: openai or anthropic (overrides LLM_PROVIDER)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "model name (overrides the provider's MODEL variable)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "API key (overrides the provider's API_KEY variable)")
	rootCmd.PersistentFlags().StringVar(&flagMCPURL, "mcp-url", "", "MCP server URL (overrides MCP_BASE_URL)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newStreamCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// loadConfig assembles the effective configuration: defaults, then an
// optional YAML file, then the environment, then command-line flags.
// A missing .env file or config file is not an error.
func loadConfig() (*config.Config, error) {
	godotenv.Load()

	var cfg *config.Config
	if path, err := config.FindConfig(flagConfig); err == nil {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else if flagConfig != "" {
		return nil, err
	} else {
		cfg = config.Default()
	}

	cfg.ApplyEnv()

	if flagProvider != "" {
		cfg.LLM.Provider = flagProvider
		// A provider change invalidates env-derived credentials; re-read
		// them for the selected provider.
		cfg.LLM.APIKey = ""
		cfg.LLM.Model = ""
		cfg.ApplyEnv()
	}
	if flagModel != "" {
		cfg.LLM.Model = flagModel
	}
	if flagAPIKey != "" {
		cfg.LLM.APIKey = flagAPIKey
	}
	if flagMCPURL != "" {
		cfg.MCP.BaseURL = flagMCPURL
	}
	if flagDebug {
		cfg.Debug = true
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	return cfg, nil
}

// setupLogging installs the default slog logger per the config.
func setupLogging(cfg *config.Config) error {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Debug && level > slog.LevelDebug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

// newTransport builds the HTTP transport for the configured MCP server.
func newTransport(cfg *config.Config) *mcp.HTTPTransport {
	return mcp.NewHTTPTransport(mcp.HTTPConfig{
		BaseURL: cfg.MCP.BaseURL,
		Timeout: cfg.MCP.Timeout(),
	})
}

// newSession builds an unconnected session on a fresh transport.
func newSession(cfg *config.Config) *mcp.Session {
	return mcp.NewSession(newTransport(cfg), slog.Default())
}

// newReader builds an SSE reader for the configured MCP server.
func newReader(cfg *config.Config) *sse.Reader {
	return sse.NewReader(sse.ReaderConfig{
		BaseURL:        cfg.MCP.BaseURL,
		ReconnectDelay: cfg.MCP.ReconnectDelay(),
		MaxReconnects:  cfg.MCP.MaxReconnects,
	})
}
