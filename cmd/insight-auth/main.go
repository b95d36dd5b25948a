// Command insight-auth serves the insight database API behind bearer-token
// authentication and claims-based database authorization.
//
// Configuration is layered: struct defaults, then the optional file named
// by -config (or INSIGHT_CONFIG_FILE), then INSIGHT_* environment
// variables, e.g.
//
//	INSIGHT_AUTH_TYPE=token-based \
//	INSIGHT_AUTH_JWKS_ENDPOINT=https://idp.example.com/.well-known/jwks.json \
//	INSIGHT_AUTH_PERMISSIONS_FILE=/etc/insight/permissions.yaml \
//	insight-auth -config /etc/insight/config.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/StricklySoft/insight-auth/internal/server"
	"github.com/StricklySoft/insight-auth/pkg/auth"
	"github.com/StricklySoft/insight-auth/pkg/clients/redis"
	"github.com/StricklySoft/insight-auth/pkg/config"
	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
	"github.com/StricklySoft/insight-auth/pkg/lifecycle"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// AppConfig is the full process configuration.
type AppConfig struct {
	LogLevel  string                  `env:"LOG_LEVEL" envDefault:"info" yaml:"logLevel" json:"logLevel"`
	Auth      auth.Config             `env:"AUTH" yaml:"auth" json:"auth"`
	Server    server.Config           `env:"SERVER" yaml:"server" json:"server"`
	Databases map[string]redis.Config `yaml:"databases" json:"databases"`
}

// Validate checks the auth section; database entries are validated when
// the registry is built.
func (c *AppConfig) Validate() error {
	return c.Auth.Validate()
}

func main() {
	configFile := flag.String("config", os.Getenv("INSIGHT_CONFIG_FILE"), "path to a YAML or JSON config file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		slog.Error("insight-auth exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	var cfg AppConfig
	if err := config.New().WithEnvPrefix("INSIGHT").WithFile(configFile).Load(&cfg); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	providers, err := auth.NewProviders(cfg.Auth, auth.WithLogger(logger))
	if err != nil {
		return err
	}

	registry, err := redis.NewRegistry(cfg.Databases, providers.Oracle, redis.WithLogger(logger))
	if err != nil {
		return err
	}

	builder := lifecycle.NewBuilder("insight-auth", version).
		WithLogger(logger).
		WithOnStart(providers.Start).
		WithOnStop(func(context.Context) error {
			providers.Stop()
			return registry.Close()
		}).
		OnStateChange(func(old, new lifecycle.State) {
			logger.Info("state transition", "from", old.String(), "to", new.String())
		})
	if providers.Keys != nil {
		builder = builder.WithHealthCheck("verification-key", func(context.Context) error {
			if _, ok := providers.Keys.Load(); !ok {
				return sserr.New(sserr.CodeAuthenticationKeyUnavailable, "key not initialized")
			}
			return nil
		})
	}
	svc, err := builder.Build()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return err
	}

	serveErr := server.New(cfg.Server, providers, registry, svc, logger).ListenAndServe(ctx)

	if err := svc.Stop(context.WithoutCancel(ctx)); err != nil {
		logger.Error("failed to stop service", "error", err)
	}
	return serveErr
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
