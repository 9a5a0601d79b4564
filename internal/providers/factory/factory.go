// Package factory turns loaded configuration into the provider registry and
// dispatch engines the binaries share.
package factory

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/config"
	"github.com/ajayykmr/sms-gateway/internal/dispatch"
	"github.com/ajayykmr/sms-gateway/internal/jobs"
	"github.com/ajayykmr/sms-gateway/internal/providers/builtin"
	"github.com/ajayykmr/sms-gateway/internal/providers/fake"
	"github.com/ajayykmr/sms-gateway/internal/registry"
	"github.com/ajayykmr/sms-gateway/internal/resilience/circuitbreaker"
)

// Registry registers every configured provider plus the fake one and sets
// the random pool. The default provider, or every pool member when the
// default is random, is built once up front so bad credentials fail startup.
func Registry(cfg config.SMSConfig, store *fake.Store, logger zerolog.Logger) (*registry.Registry, error) {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	reg := registry.New()
	if err := builtin.Register(reg, cfg.Providers, store); err != nil {
		return nil, fmt.Errorf("factory: register providers: %w", err)
	}
	reg.SetRandomPool(cfg.RandomDrivers)

	def := strings.ToLower(strings.TrimSpace(cfg.Default))
	if err := reg.Preflight(common.Deps{Logger: logger}, def); err != nil {
		return nil, fmt.Errorf("factory: default provider %q: %w", def, err)
	}
	if def == fake.Name {
		logger.Warn().Msg("default sms provider is fake; messages are recorded in memory and not delivered")
	}

	logger.Info().
		Strs("providers", reg.Names()).
		Strs("random_pool", reg.RandomPool()).
		Str("default", def).
		Msg("sms providers initialised")
	return reg, nil
}

// Breakers returns a shared breaker set, or nil when disabled.
func Breakers(cfg config.BreakerConfig, logger zerolog.Logger) *circuitbreaker.Set {
	if !cfg.Enabled {
		return nil
	}
	return circuitbreaker.NewSet(logger, nil)
}

// Engines returns a constructor for per-request dispatch engines. Engines
// are not safe for concurrent use; the registry, breakers and listeners
// passed here are shared by all of them.
func Engines(reg *registry.Registry, cfg *config.Config, submitter jobs.Submitter, breakers *circuitbreaker.Set, logger zerolog.Logger, listeners ...dispatch.Listener) func() *dispatch.Engine {
	deps := common.Deps{Logger: logger, Timeout: cfg.Timeouts.Provider()}
	return func() *dispatch.Engine {
		opts := []dispatch.Option{
			dispatch.WithDefaultProvider(cfg.SMS.Default),
			dispatch.WithQueueByDefault(cfg.SMS.Queue),
			dispatch.WithDeps(deps),
			dispatch.WithLogger(logger),
			dispatch.WithListener(listeners...),
		}
		if submitter != nil {
			opts = append(opts, dispatch.WithSubmitter(submitter))
		}
		if breakers != nil {
			opts = append(opts, dispatch.WithBreakers(breakers))
		}
		return dispatch.New(reg, opts...)
	}
}
