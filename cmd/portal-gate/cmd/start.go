package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/evcare/portal-gate/internal/adapter/inbound/http"
	auditstore "github.com/evcare/portal-gate/internal/adapter/outbound/audit"
	"github.com/evcare/portal-gate/internal/adapter/outbound/cel"
	"github.com/evcare/portal-gate/internal/adapter/outbound/evcare"
	"github.com/evcare/portal-gate/internal/adapter/outbound/memory"
	"github.com/evcare/portal-gate/internal/adapter/outbound/redis"
	"github.com/evcare/portal-gate/internal/adapter/outbound/sqlite"
	"github.com/evcare/portal-gate/internal/adapter/outbound/state"
	"github.com/evcare/portal-gate/internal/config"
	"github.com/evcare/portal-gate/internal/domain/audit"
	"github.com/evcare/portal-gate/internal/domain/auth"
	"github.com/evcare/portal-gate/internal/domain/login"
	"github.com/evcare/portal-gate/internal/domain/ratelimit"
	"github.com/evcare/portal-gate/internal/domain/route"
	"github.com/evcare/portal-gate/internal/domain/session"
	"github.com/evcare/portal-gate/internal/service"
	"github.com/evcare/portal-gate/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the portal gate server",
	Long: `Start the portal gate server.

The gate hydrates the persisted session, builds the role-gated route table,
and serves the auth endpoints plus every portal page path.

Examples:
  # Start with config file settings
  portal-gate start

  # Start in development mode (debug logging, in-memory session)
  portal-gate start --dev

  # Start with a specific config file
  portal-gate --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, in-memory session)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug // DevMode always forces debug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// Write PID file so "portal-gate stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("portal-gate stopped")
	return nil
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DevMode {
		logger.Warn("development mode enabled, do not use in production")
	}

	// ===== Telemetry =====
	var otelMeter metric.Meter
	if cfg.Telemetry.Enabled {
		interval := parseDurationOr(cfg.Telemetry.MetricsInterval, 15*time.Second, "telemetry.metrics_interval", logger)
		shutdownTelemetry, err := telemetry.Setup("portal-gate", Version, interval)
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
		otelMeter = otel.Meter("portal-gate")
		logger.Debug("telemetry enabled", "metrics_interval", interval)
	}

	// ===== Session vault and manager =====
	vault, closeVault, err := buildVault(cfg, logger)
	if err != nil {
		return err
	}
	if closeVault != nil {
		defer closeVault()
	}

	manager := session.NewManager(vault, logger)
	if err := manager.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	snapshot := manager.Current()
	logger.Info("session hydrated",
		"vault", cfg.Session.Vault,
		"status", snapshot.Status,
	)

	// ===== Audit pipeline =====
	var auditService *service.AuditService
	if cfg.Audit.Enabled {
		var store audit.Store
		if cfg.DevMode {
			// Dev mode writes audit records straight to stdout.
			store = memory.NewAuditStore()
		} else {
			fileStore, err := auditstore.NewFileStore(auditstore.FileConfig{
				Dir:           cfg.Audit.Dir,
				RetentionDays: cfg.Audit.RetentionDays,
				MaxFileSizeMB: cfg.Audit.MaxFileSizeMB,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to create audit store: %w", err)
			}
			store = fileStore
		}
		defer func() { _ = store.Close() }()

		auditService = service.NewAuditService(store, logger,
			service.WithChannelSize(cfg.Audit.ChannelSize),
			service.WithBatchSize(cfg.Audit.BatchSize),
			service.WithFlushInterval(parseDurationOr(cfg.Audit.FlushInterval, time.Second, "audit.flush_interval", logger)),
			service.WithSendTimeout(parseDurationOr(cfg.Audit.SendTimeout, 100*time.Millisecond, "audit.send_timeout", logger)),
			service.WithWarningThreshold(cfg.Audit.WarningThreshold),
		)
		auditService.Start(ctx)
		defer auditService.Stop()
		logger.Debug("audit trail enabled", "dir", cfg.Audit.Dir)

		if otelMeter != nil {
			unregister, err := telemetry.RegisterAuditObserver(otelMeter, auditService)
			if err != nil {
				logger.Warn("failed to register audit observer", "error", err)
			} else {
				defer func() { _ = unregister() }()
			}
		}
	}

	// ===== Login strategy =====
	strategy, profile, err := buildStrategy(cfg, logger)
	if err != nil {
		return err
	}

	// ===== Route table and services =====
	table, err := buildRouteTable(cfg)
	if err != nil {
		return fmt.Errorf("failed to build route table: %w", err)
	}

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create condition evaluator: %w", err)
	}

	routeService, err := service.NewRouteService(table, evaluator, logger)
	if err != nil {
		return fmt.Errorf("failed to build route service: %w", err)
	}

	authService := service.NewAuthService(manager, strategy, auditService, logger)

	// ===== Transport =====
	transportOpts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		http.WithVersion(Version),
	}
	if auditService != nil {
		transportOpts = append(transportOpts, http.WithAuditService(auditService))
	}
	if profile != nil {
		transportOpts = append(transportOpts, http.WithProfileFetcher(profile))
	}
	if cfg.Telemetry.Enabled {
		transportOpts = append(transportOpts, http.WithTracing())
	}

	if cfg.RateLimit.Enabled {
		cleanupInterval := parseDurationOr(cfg.RateLimit.CleanupInterval, 5*time.Minute, "rate_limit.cleanup_interval", logger)
		maxTTL := parseDurationOr(cfg.RateLimit.MaxTTL, time.Hour, "rate_limit.max_ttl", logger)

		limiter := memory.NewRateLimiterWithConfig(cleanupInterval, maxTTL)
		limiter.StartCleanup(ctx)
		defer limiter.Stop()

		limitCfg := ratelimit.Config{
			Rate:   cfg.RateLimit.LoginRate,
			Burst:  cfg.RateLimit.LoginBurst,
			Period: parseDurationOr(cfg.RateLimit.Period, time.Minute, "rate_limit.period", logger),
		}
		transportOpts = append(transportOpts, http.WithRateLimiter(limiter, limitCfg))

		logger.Debug("login rate limiting enabled",
			"rate", limitCfg.Rate,
			"burst", limitCfg.Burst,
			"period", limitCfg.Period,
		)
	}

	if cfg.Upstream.URL != "" {
		upstreamURL, err := url.Parse(cfg.Upstream.URL)
		if err != nil {
			return fmt.Errorf("invalid upstream.url: %w", err)
		}
		transportOpts = append(transportOpts, http.WithUpstream(upstreamURL))
		logger.Info("frontend upstream configured", "url", cfg.Upstream.URL)
	}

	logger.Info("portal-gate starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"vault", cfg.Session.Vault,
		"strategy", cfg.Login.Strategy,
		"routes", len(table.Rules()),
		"rate_limit", cfg.RateLimit.Enabled,
		"audit", cfg.Audit.Enabled,
	)

	transport := http.NewTransport(authService, routeService, transportOpts...)
	return transport.Start(ctx)
}

// buildVault creates the configured session vault. The returned close
// function may be nil.
func buildVault(cfg *config.Config, logger *slog.Logger) (session.Vault, func(), error) {
	switch cfg.Session.Vault {
	case "memory":
		return memory.NewVault(), nil, nil

	case "file":
		return state.NewFileVault(cfg.Session.StatePath, logger), nil, nil

	case "sqlite":
		vault, err := sqlite.NewVault(cfg.Session.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite vault: %w", err)
		}
		return vault, func() { _ = vault.Close() }, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		vault := redis.NewVault(client, redis.WithKeyPrefix(cfg.Session.Redis.KeyPrefix))
		return vault, func() { _ = client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown session vault: %s", cfg.Session.Vault)
	}
}

// buildStrategy creates the configured login strategy. The second return is
// the profile passthrough, non-nil only for the backend strategy.
func buildStrategy(cfg *config.Config, logger *slog.Logger) (login.Strategy, http.ProfileFetcher, error) {
	switch cfg.Login.Strategy {
	case "fixed_table":
		accounts := accountsFromConfig(cfg)
		logger.Debug("login strategy: fixed table", "accounts", len(accounts))
		return login.NewFixedTableStrategy(accounts), nil, nil

	case "backend":
		timeout := parseDurationOr(cfg.Login.Backend.Timeout, 10*time.Second, "login.backend.timeout", logger)
		client := evcare.NewClient(cfg.Login.Backend.BaseURL, evcare.WithTimeout(timeout))
		logger.Debug("login strategy: backend", "base_url", cfg.Login.Backend.BaseURL, "timeout", timeout)
		return client, client, nil

	default:
		return nil, nil, fmt.Errorf("unknown login strategy: %s", cfg.Login.Strategy)
	}
}

// accountsFromConfig converts configured accounts, falling back to the
// built-in demo table when none are configured.
func accountsFromConfig(cfg *config.Config) []login.Account {
	if len(cfg.Login.Accounts) == 0 {
		return login.DefaultAccounts()
	}
	accounts := make([]login.Account, len(cfg.Login.Accounts))
	for i, a := range cfg.Login.Accounts {
		accounts[i] = login.Account{
			ID:       a.ID,
			Email:    a.Email,
			Password: a.Password,
			Name:     a.Name,
			Phone:    a.Phone,
			Role:     auth.Role(a.Role),
			Avatar:   a.Avatar,
		}
	}
	return accounts
}

// buildRouteTable converts the configured rules into a route table.
func buildRouteTable(cfg *config.Config) (*route.Table, error) {
	rules := make([]route.Rule, len(cfg.Routes.Rules))
	for i, r := range cfg.Routes.Rules {
		rules[i] = route.Rule{
			Path:        r.Path,
			Requirement: route.Requirement(r.Access),
			Role:        auth.Role(r.Role),
			Condition:   r.Condition,
		}
	}

	opts := []route.TableOption{
		route.WithLoginPath(cfg.Routes.LoginPath),
		route.WithFallbackTarget(cfg.Routes.FallbackTarget),
	}
	for role, home := range cfg.Routes.RoleHomes {
		opts = append(opts, route.WithRoleHome(auth.Role(role), home))
	}

	return route.NewTable(rules, opts...)
}

// parseDurationOr parses a duration string, logging and falling back to def
// on failure. Validation normally catches bad values first.
func parseDurationOr(value string, def time.Duration, field string, logger *slog.Logger) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("invalid duration, using default", "field", field, "value", value, "default", def)
		return def
	}
	return d
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
