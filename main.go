package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/api"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/delivery"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/dispatch"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/breaker"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/config"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/dkim"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/logger"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/metrics"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/retry"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/queue"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/storage"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/tlsconfig"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(serve())
}

// serve returns the process exit code once every deferred cleanup has run.
func serve() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *log); err != nil {
		log.Error().Err(err).Msg("dispatch service stopped")
		return 1
	}
	log.Info().Msg("dispatch service stopped")
	return 0
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	rec := metrics.New()

	signer, err := dkim.New(dkim.Options{
		Selector:   cfg.DKIMSelector,
		Domain:     cfg.DKIMDomain,
		KeyPath:    cfg.DKIMKeyPath,
		PrivateKey: cfg.DKIMPrivateKey,
	})
	if err != nil {
		return err
	}
	if signer != nil {
		log.Info().Str("selector", signer.Selector()).Msg("DKIM signing enabled")
	}

	providers, err := buildProviders(cfg.Providers, providerDeps{
		hostname:   cfg.Hostname,
		signer:     signer,
		requireTLS: cfg.SMTPRequireTLS,
		log:        log,
	})
	if err != nil {
		return err
	}

	d, err := dispatch.New(dispatcherConfig(cfg), providers, log, rec)
	if err != nil {
		return err
	}

	q := queue.NewManager(d, cfg.QueueInterval, log, rec)
	q.Start(ctx)
	defer q.Stop()

	tlsConf, err := tlsconfig.Load(cfg.TLSCert, cfg.TLSKey)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	defer ln.Close()
	if tlsConf != nil {
		ln = tls.NewListener(ln, tlsConf)
	}

	app := api.New(d, q, rec, log)
	serveErr := make(chan error, 1)
	go func() { serveErr <- app.Listener(ln) }()

	log.Info().
		Str("addr", ln.Addr().String()).
		Bool("tls", tlsConf != nil).
		Strs("providers", d.Providers()).
		Msg("email service running")

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}

func dispatcherConfig(cfg config.Config) dispatch.Config {
	return dispatch.Config{
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateWindow,
		Breaker: breaker.Config{
			FailureThreshold: cfg.BreakerThreshold,
			RecoveryTimeout:  cfg.BreakerRecovery,
		},
		Retry: retry.Policy{
			MaxAttempts: cfg.RetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
		},
	}
}

// providerDeps carries the process-wide settings every provider shares.
type providerDeps struct {
	hostname   string
	signer     *dkim.Signer
	requireTLS bool
	log        zerolog.Logger
}

// buildProviders turns the provider list into dispatch.Providers, keeping
// order.
func buildProviders(list []config.ProviderConfig, deps providerDeps) ([]dispatch.Provider, error) {
	providers := make([]dispatch.Provider, 0, len(list))
	for _, pc := range list {
		p, err := buildProvider(pc, deps)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func buildProvider(pc config.ProviderConfig, deps providerDeps) (dispatch.Provider, error) {
	switch pc.Type {
	case config.ProviderSimulated:
		var opts []delivery.SimulatedOption
		if pc.Seed != 0 {
			opts = append(opts, delivery.WithSeed(pc.Seed))
		}
		return delivery.NewSimulated(pc.Name, pc.SuccessRate, pc.Latency, opts...), nil
	case config.ProviderSMTP:
		s, err := delivery.NewSMTP(delivery.SMTPConfig{
			Name:        pc.Name,
			Host:        pc.Host,
			Port:        pc.Port,
			Username:    pc.Username,
			Password:    pc.Password,
			HeloName:    deps.hostname,
			RequireTLS:  deps.requireTLS,
			RatePerSec:  pc.RatePerSec,
			DialTimeout: pc.DialTimeout,
			Signer:      deps.signer,
			Log:         deps.log.With().Str("provider", pc.Name).Logger(),
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.ProviderPickup:
		spool, err := storage.NewSpool(pc.Dir)
		if err != nil {
			return nil, err
		}
		p, err := delivery.NewPickup(pc.Name, spool, deps.hostname, deps.signer)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}
