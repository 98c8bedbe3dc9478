// ABOUTME: Entry point for the chat-gateway server
// ABOUTME: Routes chat traffic between users, bot responders, and CSR agents

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/deepika827/ChatbotRasa/internal/auth"
	"github.com/deepika827/ChatbotRasa/internal/config"
	"github.com/deepika827/ChatbotRasa/internal/dedupe"
	"github.com/deepika827/ChatbotRasa/internal/escalation"
	"github.com/deepika827/ChatbotRasa/internal/gateway"
	"github.com/deepika827/ChatbotRasa/internal/responder"
	"github.com/deepika827/ChatbotRasa/internal/room"
	"github.com/deepika827/ChatbotRasa/internal/session"
	"github.com/deepika827/ChatbotRasa/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
       _           _
   ___| |__   __ _| |_       __ _  __ _| |_ _____      ____ _ _   _
  / __| '_ \ / _' | __|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | (__| | | | (_| | ||_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \___|_| |_|\__,_|\__|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                            |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: CHAT_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/chat-gateway/gateway.yaml > ~/.config/chat-gateway/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHAT_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chat-gateway", "gateway.yaml")
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: chat-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                    Start the gateway server")
		fmt.Println("  health                   Check gateway health")
		fmt.Println("  token --agent ID [--ttl DUR]  Mint a CSR agent token")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "token":
		err = runToken()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting chat-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer sqlStore.Close()

	chain := buildChain(cfg, logger)
	policy := buildPolicy(cfg)

	registry := session.NewRegistry(logger)
	rooms := room.NewRouter(logger)
	ctrl := escalation.NewController(registry, chain, policy, logger)

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("auth.jwt_secret not set, agent identities are unverified")
	}

	gw := gateway.New(gateway.Options{
		Registry:   registry,
		Rooms:      rooms,
		Controller: ctrl,
		Store:      sqlStore,
		Dedupe:     dedupe.New(5*time.Minute, 10000),
		Verifier:   verifier,
		Logger:     logger,
	})

	srv := gateway.NewServer(gw, cfg.Server.HTTPAddr, cfg.Server.AllowedOrigins)
	return srv.Run(ctx)
}

// buildChain assembles the ordered responder chain from config. The
// generative engine, when enabled, always goes first.
func buildChain(cfg *config.Config, logger *slog.Logger) []responder.Responder {
	var chain []responder.Responder
	if cfg.Responders.OpenAI.Enabled {
		chain = append(chain, responder.NewOpenAIResponder(responder.OpenAIConfig{
			APIKey:  cfg.Responders.OpenAI.APIKey,
			Model:   cfg.Responders.OpenAI.Model,
			BaseURL: cfg.Responders.OpenAI.BaseURL,
		}, logger))
	}
	if cfg.Responders.Rasa.Enabled {
		chain = append(chain, responder.NewRasaResponder(cfg.Responders.Rasa.WebhookURL, logger))
	}
	return chain
}

// buildPolicy starts from the stock policy and applies config overrides.
func buildPolicy(cfg *config.Config) escalation.Policy {
	policy := escalation.DefaultPolicy()
	if len(cfg.Escalation.HandoffKeywords) > 0 {
		policy.HandoffKeywords = cfg.Escalation.HandoffKeywords
	}
	if len(cfg.Escalation.LowConfidencePhrases) > 0 {
		policy.LowConfidencePhrases = cfg.Escalation.LowConfidencePhrases
	}
	if cfg.Escalation.ResponderTimeout > 0 {
		policy.ResponderTimeout = cfg.Escalation.ResponderTimeout
	}
	return policy
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runToken mints a JWT for a CSR agent console.
// Supports both "--agent value" and "--agent=value" formats.
func runToken() error {
	var agentID string
	var ttlRaw string

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--agent" || arg == "-a":
			if i+1 >= len(args) {
				return fmt.Errorf("--agent requires a value")
			}
			agentID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--agent="):
			agentID = strings.TrimPrefix(arg, "--agent=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return fmt.Errorf("--ttl requires a value")
			}
			ttlRaw = args[i+1]
			i++
		case strings.HasPrefix(arg, "--ttl="):
			ttlRaw = strings.TrimPrefix(arg, "--ttl=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return fmt.Errorf("--agent flag is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured (required for token minting)")
	}

	ttl := cfg.Auth.TokenTTL
	if ttlRaw != "" {
		ttl, err = time.ParseDuration(ttlRaw)
		if err != nil {
			return fmt.Errorf("parsing --ttl %q: %w", ttlRaw, err)
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(agentID, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Token for agent %s (expires %s)\n\n", agentID, time.Now().Add(ttl).UTC().Format("Jan 02, 2006 15:04"))
	fmt.Println(token)
	return nil
}
