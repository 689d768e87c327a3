package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/noironetworks/neutron/pkg/config"
	"github.com/noironetworks/neutron/pkg/engine"
	"github.com/noironetworks/neutron/pkg/mo"
	"github.com/noironetworks/neutron/pkg/policy"
	"github.com/noironetworks/neutron/pkg/stores"
	"github.com/noironetworks/neutron/pkg/telemetry"
	"github.com/noironetworks/neutron/pkg/transports/apic"
)

// app is everything a command needs to talk to the controller.
type app struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	session  *apic.Session
	store    *stores.SQLiteStore
	manager  *engine.Manager
	policies *policy.Engine
}

// loadConfig reads the --config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return cfg, nil
}

// openApp builds telemetry, the local store, a logged-in controller
// session and the reconciliation engine from cfg.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	a := &app{cfg: cfg, tel: tel}

	a.store, err = stores.Open(ctx, cfg.Store)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a.session, err = apic.Connect(ctx, &cfg.APIC, tel)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to connect to controller: %w", err)
	}

	opts := []engine.Option{
		engine.WithTelemetry(tel),
		engine.WithSegmentSource(cfg.StaticSegments()),
	}
	if cfg.Policy.Enabled {
		a.policies, err = policy.NewEngineFromConfig(ctx, cfg.Policy, tel.Logger.Zerolog())
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
		opts = append(opts, engine.WithAdmission(a.policies))
	}

	client := mo.NewClient(a.session, tel)
	a.manager = engine.NewManager(client, a.store, cfg.Engine, opts...)
	return a, nil
}

// close logs out and releases resources; it is safe on a partial app.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.session != nil {
		a.session.Logout(ctx)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}
	if a.tel != nil {
		if err := a.tel.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to flush telemetry")
		}
	}
}

// withApp runs fn with an app built from the --config file.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := fn(ctx, a); err != nil {
		return describe(err)
	}
	return nil
}

// describe adds the engine error class and code to a failure.
func describe(err error) error {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		// The class is already part of the message.
		return fmt.Errorf("%w (code=%s)", err, engine.CodeOf(err))
	}
	return fmt.Errorf("%w (class=%s, code=%s)", err, engine.Classify(err), engine.CodeOf(err))
}

// printResult writes v as JSON with --json, otherwise the text line.
func printResult(v interface{}, text string) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Println(text)
	return nil
}
