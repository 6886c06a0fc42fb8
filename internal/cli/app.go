// Package cli is the command-line front-end: it wires the persistence layer
// from configuration and maps commands onto repository and identity calls.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmynk/mealsync/internal/auth"
	"github.com/mmynk/mealsync/internal/config"
	"github.com/mmynk/mealsync/internal/events"
	"github.com/mmynk/mealsync/internal/metrics"
	"github.com/mmynk/mealsync/internal/middleware"
	"github.com/mmynk/mealsync/internal/namespace"
	"github.com/mmynk/mealsync/internal/repository"
	"github.com/mmynk/mealsync/internal/service"
	"github.com/mmynk/mealsync/internal/session"
	"github.com/mmynk/mealsync/internal/storage"
	"github.com/mmynk/mealsync/internal/storage/memory"
	"github.com/mmynk/mealsync/internal/storage/redis"
	"github.com/mmynk/mealsync/internal/storage/sqlite"
)

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage")

// command is one entry of the command table.
type command struct {
	usage string
	help  string

	// identity marks commands that need a signed-in or demo identity.
	identity bool
	run      middleware.Handler
}

// App is one running front-end. It behaves like one browser tab: it owns a
// storage.Local over the configured backend.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	out      io.Writer
	outMu    sync.Mutex
	registry *prometheus.Registry

	backend storage.Backend
	store   *storage.Local
	session *session.Session
	bus     *events.Bus

	migrator      *namespace.Migrator
	expenses      *repository.Expenses
	notifications *repository.Notifications
	profiles      *repository.Profiles
	settings      *repository.Settings
	identity      *service.IdentityService

	commands map[string]command
	watches  []func()
	closers  []func() error
}

// New builds the application from cfg and resumes any stored session.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		out:      out,
		registry: prometheus.NewRegistry(),
		session:  session.New(),
	}

	var broadcaster storage.Broadcaster
	var users auth.UserStorage
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		store, err := sqlite.New(cfg.DBPath, sqlite.WithQuota(cfg.QuotaBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite backend: %w", err)
		}
		a.backend, users = store, store
		logger.Info("Storage initialized", "backend", cfg.StorageBackend, "database", cfg.DBPath)
	case config.BackendRedis:
		store, err := redis.New(ctx, cfg.RedisURL,
			redis.WithPrefix(cfg.RedisPrefix),
			redis.WithChannel(cfg.RedisChannel),
			redis.WithQuota(cfg.QuotaBytes),
			redis.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis backend: %w", err)
		}
		a.backend, broadcaster, users = store, store, auth.NewKVUsers(store)
		logger.Info("Storage initialized", "backend", cfg.StorageBackend, "channel", cfg.RedisChannel)
	case config.BackendMemory:
		store := memory.New(cfg.QuotaBytes)
		a.backend, broadcaster, users = store, memory.NewHub(), auth.NewKVUsers(store)
		logger.Info("Storage initialized", "backend", cfg.StorageBackend)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	a.closers = append(a.closers, a.backend.Close)

	rec := metrics.NewPrometheus(a.registry)
	opts := []storage.Option{storage.WithLogger(logger), storage.WithMetrics(rec)}
	if broadcaster != nil {
		opts = append(opts, storage.WithBroadcaster(broadcaster))
	}
	a.store = storage.NewLocal(a.backend, opts...)
	a.closers = append([]func() error{a.store.Close}, a.closers...)

	a.bus = events.NewBus(rec)
	a.migrator = namespace.NewMigrator(a.store,
		namespace.WithPolicy(policy),
		namespace.WithMigratorLogger(logger),
		namespace.WithMigratorMetrics(rec),
	)
	a.expenses = repository.NewExpenses(a.store, a.session, a.bus, logger)
	a.notifications = repository.NewNotifications(a.store, a.session, a.migrator, logger)
	a.profiles = repository.NewProfiles(a.store, a.session, logger)
	a.settings = repository.NewSettings(a.store, logger)
	repository.NotifyOnExpense(a.bus, a.notifications, a.settings)

	authenticator := auth.NewPasswordAuthenticator(users, auth.WithLogger(logger))
	a.identity = service.NewIdentityService(
		authenticator,
		auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		a.session,
		a.store,
		a.profiles,
		service.WithMigrator(a.migrator),
		service.WithClearPreviousUserData(cfg.ClearPreviousUserData),
		service.WithLogger(logger),
	)

	a.commands = a.commandTable()
	a.identity.Restore(ctx)
	return a, nil
}

// Close stops watches and releases the backend.
func (a *App) Close() error {
	a.unwatch()
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run executes one command line, already split into words.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}

	name, rest := args[0], args[1:]
	if len(rest) > 0 {
		if _, ok := a.commands[name+" "+rest[0]]; ok {
			name, rest = name+" "+rest[0], rest[1:]
		}
	}
	cmd, ok := a.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try \"help\"", strings.Join(args, " "))
	}

	mws := []middleware.Middleware{
		middleware.OptionalIdentity(a.session),
		middleware.Logging(a.logger),
	}
	if cmd.identity {
		mws = append(mws, middleware.RequireIdentity(a.session))
	}
	err := middleware.Chain(name, cmd.run, mws...)(ctx, rest)
	if errors.Is(err, ErrUsage) {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return err
}

// REPL reads command lines from in until EOF or "exit". Command errors are
// printed and do not stop the loop.
func (a *App) REPL(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	a.prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			return nil
		}

		args, err := Split(line)
		if err == nil {
			err = a.Run(ctx, args)
		}
		if err != nil {
			a.printf("error: %v\n", err)
		}
		a.prompt()
	}
	return scanner.Err()
}

func (a *App) prompt() {
	label := "mealsync"
	if ident := a.session.Identity(); !ident.IsZero() {
		label = ident.Email
		if ident.Ephemeral {
			label = "demo"
		}
	}
	a.printf("%s> ", label)
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// names returns the command names, sorted.
func (a *App) names() []string {
	names := make([]string, 0, len(a.commands))
	for name := range a.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Split breaks a command line into words. Double or single quotes group
// words; a backslash escapes the next character.
func Split(line string) ([]string, error) {
	var words []string
	var cur strings.Builder
	var quote rune
	inWord, escaped := false, false

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped, inWord = true, true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote, inWord = r, true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}
