package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-pipeline/internal/agent"
	"github.com/giantswarm/mcp-pipeline/internal/pipeline"
)

// callbackPortOffset spaces the preferred callback ports of the configured
// servers so concurrent OAuth handshakes never collide on the same port.
const callbackPortOffset = 10

var (
	version string

	researchEndpoint          string
	translateEndpoint         string
	translateFallbackEndpoint string
	query                     string
	targetLang                string
	draftModel                string
	verbose                   bool
	noColor                   bool
	jsonRPC                   bool

	// OAuth flags
	oauthEnabled      bool
	oauthClientID     string
	oauthClientSecret string
	oauthScopes       []string
	oauthCallbackPort int
	oauthTimeout      time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcp-pipeline",
	Short: "OAuth-authenticated MCP content pipeline",
	Long: `mcp-pipeline drives a three-stage content pipeline over remote MCP
(Model Context Protocol) tool servers: research a topic through a search
tool, draft an article from the findings, and translate the draft into a
target language.

Servers that require authorization are handled with the OAuth 2.1
authorization-code flow: a temporary loopback listener receives the
redirect, your browser is opened for consent, and the received code is
exchanged for tokens. Each server gets its own in-memory session and its
own callback port; nothing is persisted across runs.

Remote calls are retried with exponential backoff where that is safe, and
translation failures degrade to returning the original text rather than
aborting the run. Every degradation is flagged in the output.

The research query and target language are prompted for interactively when
the --query and --lang flags are not given.`,
	RunE: runPipeline,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// SetVersion sets the version for the application
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.Flags().StringVar(&researchEndpoint, "research-endpoint", "http://localhost:8091/mcp", "MCP endpoint of the search tool server (must end with /mcp)")
	rootCmd.Flags().StringVar(&translateEndpoint, "translate-endpoint", "http://localhost:8092/mcp", "MCP endpoint of the primary translation server (must end with /mcp)")
	rootCmd.Flags().StringVar(&translateFallbackEndpoint, "translate-fallback-endpoint", "", "MCP endpoint of the secondary translation server (optional)")
	rootCmd.Flags().StringVar(&query, "query", "", "Research query (prompted for when omitted)")
	rootCmd.Flags().StringVar(&targetLang, "lang", "", "Target language code (default: es, prompted for when omitted)")
	rootCmd.Flags().StringVar(&draftModel, "draft-model", "", "Completion model for the draft stage (default: gpt-4o-mini)")
	// Logging and OAuth flags apply to every subcommand that connects to a
	// server, so they are persistent.
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonRPC, "json-rpc", false, "Enable full JSON-RPC message logging")

	rootCmd.PersistentFlags().BoolVar(&oauthEnabled, "oauth", false, "Enable OAuth authentication for connecting to protected MCP servers")
	rootCmd.PersistentFlags().StringVar(&oauthClientID, "oauth-client-id", "", "OAuth client ID (optional - will use Dynamic Client Registration if not provided)")
	rootCmd.PersistentFlags().StringVar(&oauthClientSecret, "oauth-client-secret", "", "OAuth client secret (optional)")
	rootCmd.PersistentFlags().StringSliceVar(&oauthScopes, "oauth-scopes", []string{}, "OAuth scopes to request")
	rootCmd.PersistentFlags().IntVar(&oauthCallbackPort, "oauth-callback-port", agent.DefaultCallbackPort, "Preferred base port for OAuth callback listeners (each server gets its own offset)")
	rootCmd.PersistentFlags().DurationVar(&oauthTimeout, "oauth-timeout", agent.DefaultAuthorizationTimeout, "Maximum time to wait for OAuth authorization")

	// Add subcommands
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

// validateEndpoint checks an endpoint for streamable-http transport
func validateEndpoint(endpoint string) error {
	if !strings.HasSuffix(endpoint, "/mcp") {
		return fmt.Errorf("endpoint '%s' must end with /mcp for streamable-http transport", endpoint)
	}
	return nil
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func setupSignalHandler(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down gracefully...")
		cancel()
	}()
}

// buildOAuthConfig creates a per-server OAuth configuration. Each server is
// assigned a distinct preferred callback base port.
func buildOAuthConfig(cmd *cobra.Command, logger *agent.Logger, serverIndex int) *agent.OAuthConfig {
	if !oauthEnabled {
		return nil
	}

	// Security warning: Check if client secret was passed via CLI flag
	if oauthClientSecret != "" && cmd.Flags().Changed("oauth-client-secret") {
		logger.Warning("Security Warning: Client secret passed via CLI flag is visible in process listings")
		logger.Info("Consider using environment variables instead: export OAUTH_CLIENT_SECRET=\"...\"")
	}

	config := &agent.OAuthConfig{
		Enabled:              true,
		ClientID:             oauthClientID,
		ClientSecret:         oauthClientSecret,
		Scopes:               oauthScopes,
		CallbackPort:         oauthCallbackPort + serverIndex*callbackPortOffset,
		UsePKCE:              true,
		AuthorizationTimeout: oauthTimeout,
	}

	return config.WithDefaults()
}

// promptLine reads one line interactively, returning def when the input is
// empty.
func promptLine(prompt, def string) (string, error) {
	rl, err := readline.New(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer func() { _ = rl.Close() }()

	line, err := rl.Readline()
	if err != nil {
		return "", err
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if err := validateEndpoint(researchEndpoint); err != nil {
		return err
	}
	if err := validateEndpoint(translateEndpoint); err != nil {
		return err
	}
	if translateFallbackEndpoint != "" {
		if err := validateEndpoint(translateFallbackEndpoint); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	setupSignalHandler(cancel)

	logger := agent.NewLogger(verbose, !noColor, jsonRPC)

	if query == "" {
		q, err := promptLine("Research query: ", "")
		if err != nil {
			return fmt.Errorf("failed to read query: %w", err)
		}
		if q == "" {
			return fmt.Errorf("a research query is required")
		}
		query = q
	}
	if targetLang == "" {
		lang, err := promptLine("Target language [es]: ", "es")
		if err != nil {
			return fmt.Errorf("failed to read target language: %w", err)
		}
		targetLang = lang
	}

	researchClient := agent.NewClient(agent.ClientConfig{
		Name:     "search",
		Endpoint: researchEndpoint,
		Logger:   logger,
		OAuth:    buildOAuthConfig(cmd, logger, 0),
		Version:  version,
	})
	translateClient := agent.NewClient(agent.ClientConfig{
		Name:     "translate",
		Endpoint: translateEndpoint,
		Logger:   logger,
		OAuth:    buildOAuthConfig(cmd, logger, 1),
		Version:  version,
	})

	var fallbackClient *agent.Client
	if translateFallbackEndpoint != "" {
		fallbackClient = agent.NewClient(agent.ClientConfig{
			Name:     "translate-fallback",
			Endpoint: translateFallbackEndpoint,
			Logger:   logger,
			OAuth:    buildOAuthConfig(cmd, logger, 2),
			Version:  version,
		})
	}

	// Clients are initialized sequentially for deterministic console
	// ordering; distinct callback ports would make concurrent handshakes
	// safe, but nothing here needs the speed.
	if err := researchClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to research server: %w", err)
	}
	defer func() { _ = researchClient.Close() }()

	if err := translateClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to translation server: %w", err)
	}
	defer func() { _ = translateClient.Close() }()

	cfg := pipeline.Config{
		Research:   researchClient,
		Translator: translateClient,
		Generator:  &pipeline.OpenAIGenerator{Model: draftModel},
		Logger:     logger,
	}

	if fallbackClient != nil {
		if err := fallbackClient.Connect(ctx); err != nil {
			// The fallback provider is best-effort; run without it.
			logger.Warning("Failed to connect to fallback translation server: %v", err)
		} else {
			defer func() { _ = fallbackClient.Close() }()
			cfg.TranslatorFallback = fallbackClient
		}
	}

	result := pipeline.New(cfg).Run(ctx, query, targetLang)
	return printResult(logger, result)
}

// printResult renders the pipeline outcome. Fallback application is always
// surfaced so degradation never happens silently.
func printResult(logger *agent.Logger, result *pipeline.PipelineResult) error {
	fmt.Println()

	if !result.Success {
		if failed, ok := result.FailedStep(); ok {
			if et, found := failed.Metadata["error_type"]; found {
				logger.Info("Failure classified as %v (retryable=%v)", et, failed.Metadata["retryable"])
			}
			return fmt.Errorf("pipeline failed at %s step: %w", failed.Step, failed.Err)
		}
		if wf, ok := result.StepFor(pipeline.StepWorkflow); ok {
			return fmt.Errorf("pipeline failed: %w", wf.Err)
		}
		return fmt.Errorf("pipeline failed")
	}

	translate, _ := result.StepFor(pipeline.StepTranslate)

	logger.Success("Pipeline %s complete", result.RunID)
	if fallback, ok := translate.Data["fallback_used"]; ok {
		logger.Warning("Translation fell back to provider %v (primary error: %v)", fallback, translate.Data["primary_error"])
	}
	if applied, ok := translate.Data["fallback_applied"]; ok && applied == true {
		logger.Warning("Translation unavailable, output is the original text (error: %v)", translate.Data["error"])
	}

	fmt.Println()
	fmt.Printf("Target language: %v\n\n", translate.Data["target_language"])
	fmt.Println(translate.Data["translated_text"])
	return nil
}
