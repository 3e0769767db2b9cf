package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmclachlan/confab/chat"
	"github.com/cmclachlan/confab/config"
	"github.com/cmclachlan/confab/llm"
	"github.com/cmclachlan/confab/llm/anthropic"
	"github.com/cmclachlan/confab/llm/deepseek"
	"github.com/cmclachlan/confab/llm/ollama"
	"github.com/cmclachlan/confab/llm/openai"
	confablogger "github.com/cmclachlan/confab/logger"
	"github.com/cmclachlan/confab/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command-line flags
	var (
		configPath = flag.String("config", config.GetConfigPath(), "Path to config file")
		providerID = flag.String("provider", "", "Provider id (anthropic, openai, deepseek, ollama). Overrides config")
		modelID    = flag.String("model", "", "Model id. Overrides config and provider default")
		length     = flag.String("length", "", "Response length preference (concise, balanced, detailed)")
		logFile    = flag.String("logfile", "confab.log", "Path to log file. If empty, logs to stdout/stderr")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is empty)")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, err := confablogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appConfig, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *providerID != "" {
		appConfig.Provider = *providerID
	}
	if *modelID != "" {
		appConfig.Model = *modelID
	}
	if *length != "" {
		appConfig.Chat.ResponseLength = *length
	}
	if appConfig.Model == "" {
		appConfig.Model = providerModel(appConfig)
	}

	logger.Info().
		Str("provider", appConfig.Provider).
		Str("model", appConfig.Model).
		Int("mcp_servers", len(appConfig.MCPServers)).
		Msg("confab starting")

	// ---------------------------
	// 1. Provider registry and adapter
	// ---------------------------

	registry := buildRegistry(logger, appConfig)
	desc, ok := registry.Descriptor(appConfig.Provider)
	if !ok {
		return fmt.Errorf("unknown provider %q", appConfig.Provider)
	}
	provider, err := registry.CreateProvider(appConfig.Provider, credentialFor(appConfig), appConfig.Model)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	if provider == nil {
		return fmt.Errorf("no adapter available for provider %q", appConfig.Provider)
	}

	// ---------------------------
	// 2. Tool gateway
	// ---------------------------

	// The gateway owns its connection lifetimes (SSE streams stay bound to
	// them), so Connect gets a background context and the per-server dial
	// timeout applies inside the gateway.
	gateway := mcp.NewGateway(logger, gatewayServers(appConfig))
	gateway.Connect(context.Background())
	defer gateway.Disconnect()

	for id, status := range gateway.ConnectionStatus() {
		if !status.Connected {
			fmt.Fprintf(os.Stderr, "warning: tool server %s unavailable: %s\n", id, status.Err)
		}
	}

	// ---------------------------
	// 3. Chat engine
	// ---------------------------

	ledger := chat.NewRequestLedger(logger, desc.EffectiveRPM(appConfig.Model), desc.RateLimit.Window)
	engine := chat.NewEngine(logger, provider, gateway, ledger, chat.Callbacks{
		OnTextChunk: func(chunk string) { fmt.Print(chunk) },
		OnToolStatus: func(toolName string, status chat.ToolStatus) {
			if status == chat.ToolStatusCalling {
				fmt.Fprintf(os.Stderr, "[tool] %s...\n", toolName)
			}
		},
	})

	return repl(logger, engine, provider, gateway, chat.ResponseLength(appConfig.Chat.ResponseLength))
}

// repl reads lines from stdin and runs them through the engine. SIGINT
// cancels the in-flight message without exiting.
func repl(logger zerolog.Logger, engine *chat.Engine, provider llm.ProviderAdapter, gateway *mcp.Gateway, length chat.ResponseLength) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("confab ready. /help for commands, /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := command(line, engine, provider, gateway); quit {
				return nil
			}
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			select {
			case sig := <-sigChan:
				logger.Info().Str("signal", sig.String()).Msg("Cancelling in-flight message")
				cancel()
			case <-done:
			}
		}()

		_, err := engine.SendMessage(ctx, line, length)
		close(done)
		cancel()
		fmt.Println()
		switch {
		case errors.Is(err, chat.ErrRoundLimit):
			fmt.Fprintln(os.Stderr, "(no answer: tool round limit reached)")
		case err != nil:
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		default:
			if engine.HasCapacityForFollowUps() {
				printFollowUps(engine)
			}
		}
	}
}

func command(line string, engine *chat.Engine, provider llm.ProviderAdapter, gateway *mcp.Gateway) (quit bool) {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true
	case "/clear":
		engine.ClearHistory()
		fmt.Println("history cleared")
	case "/usage":
		stats := engine.UsageStats()
		fmt.Printf("requests: %d/%d, window resets in %ds\n", stats.Used, stats.Limit, stats.ResetsInSeconds)
	case "/tools":
		for _, tool := range gateway.ListAllTools() {
			fmt.Printf("%s (%s): %s\n", tool.Name, tool.ServerID, tool.Description)
		}
	case "/status":
		for id, status := range gateway.ConnectionStatus() {
			if status.Connected {
				fmt.Printf("%s: connected\n", id)
			} else {
				fmt.Printf("%s: disconnected (%s)\n", id, status.Err)
			}
		}
	case "/balance":
		reader, ok := provider.(llm.BalanceReader)
		if !ok {
			fmt.Println("balance not supported by this provider")
			break
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		balance, err := reader.GetBalance(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		fmt.Printf("balance: %s %s\n", balance.Balance, balance.Currency)
	case "/help":
		fmt.Println("/quit /clear /usage /tools /status /balance")
	default:
		fmt.Println("unknown command; /help for the list")
	}
	return false
}

func printFollowUps(engine *chat.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	questions := engine.GenerateFollowUps(ctx)
	if len(questions) == 0 {
		return
	}
	fmt.Println("you could ask:")
	for _, q := range questions {
		fmt.Printf("  - %s\n", q)
	}
}

// buildRegistry wires the built-in provider catalog to adapter factories.
func buildRegistry(logger zerolog.Logger, appConfig *config.Config) *llm.Registry {
	registry := llm.NewRegistry()
	for _, desc := range llm.DefaultDescriptors() {
		switch desc.ID {
		case llm.ProviderAnthropic:
			registry.Register(desc, func(credential, modelID string) (llm.ProviderAdapter, error) {
				return anthropic.New(credential, modelID, logger)
			})
		case llm.ProviderOpenAI:
			registry.Register(desc, func(credential, modelID string) (llm.ProviderAdapter, error) {
				return openai.New(openai.Config{
					APIKey:       credential,
					BaseURL:      appConfig.OpenAI.BaseURL,
					Organization: appConfig.OpenAI.Organization,
					Model:        modelID,
				}, logger)
			})
		case llm.ProviderDeepSeek:
			registry.Register(desc, func(credential, modelID string) (llm.ProviderAdapter, error) {
				return deepseek.New(credential, modelID, logger)
			})
		case llm.ProviderOllama:
			registry.Register(desc, func(credential, modelID string) (llm.ProviderAdapter, error) {
				return ollama.New(credential, modelID, logger)
			})
		}
	}
	return registry
}

// credentialFor resolves the active provider's credential: config file first,
// then the conventional environment variable.
func credentialFor(appConfig *config.Config) string {
	var credential string
	switch appConfig.Provider {
	case llm.ProviderAnthropic:
		credential = appConfig.Anthropic.APIKey
	case llm.ProviderOpenAI:
		credential = appConfig.OpenAI.APIKey
	case llm.ProviderDeepSeek:
		credential = appConfig.DeepSeek.APIKey
	case llm.ProviderOllama:
		credential = appConfig.Ollama.Host
	}
	if credential == "" {
		credential = llm.CredentialFromEnv(appConfig.Provider)
	}
	return credential
}

// providerModel returns the per-provider default model from the config file.
func providerModel(appConfig *config.Config) string {
	switch appConfig.Provider {
	case llm.ProviderAnthropic:
		return appConfig.Anthropic.Model
	case llm.ProviderOpenAI:
		return appConfig.OpenAI.Model
	case llm.ProviderDeepSeek:
		return appConfig.DeepSeek.Model
	case llm.ProviderOllama:
		return appConfig.Ollama.Model
	default:
		return ""
	}
}

func gatewayServers(appConfig *config.Config) []mcp.ServerConfig {
	servers := make([]mcp.ServerConfig, 0, len(appConfig.MCPServers))
	for id, serverCfg := range appConfig.MCPServers {
		if serverCfg == nil {
			continue
		}
		servers = append(servers, mcp.ServerConfig{
			ID:      id,
			Name:    serverCfg.Name,
			URL:     serverCfg.URL,
			Command: serverCfg.Command,
			Args:    serverCfg.Args,
			Env:     serverCfg.Env,
		})
	}
	return servers
}
