package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mattjoyce/azkit/internal/config"
	"github.com/mattjoyce/azkit/internal/errdefs"
	"github.com/mattjoyce/azkit/internal/history"
	"github.com/mattjoyce/azkit/internal/log"
	"github.com/mattjoyce/azkit/internal/session"
	"github.com/mattjoyce/azkit/internal/tui/prompt"
	"github.com/mattjoyce/azkit/internal/workflow"
)

// envPassword supplies the login password without prompting.
const envPassword = "AZKIT_PASSWORD"

// remoteFlags select the endpoint a command talks to.
type remoteFlags struct {
	profile   string
	configDir string
}

func (r *remoteFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&r.profile, "p", "", "Config profile to connect with")
	fs.StringVar(&r.profile, "profile", "", "Config profile to connect with")
	fs.StringVar(&r.configDir, "config-dir", "", "Path to configuration directory")
}

// remote is an authenticated connection plus the local history store.
type remote struct {
	client  *workflow.Client
	session *session.Session
	history *history.Store
	logger  *slog.Logger
	seeded  string
}

// loadConfig discovers and loads config. A missing config is only an error
// when required; otherwise defaults are used.
func loadConfig(configDir string, required bool) (*config.Config, error) {
	dir, err := config.DiscoverConfigDir(configDir)
	if err != nil {
		if !required && configDir == "" && errors.Is(err, errdefs.ErrMissingResource) {
			return config.Defaults(), nil
		}
		return nil, err
	}
	return config.Load(dir)
}

// connect resolves the endpoint and opens a session. positionals holds the
// command's arguments; want is how many it takes besides the endpoint. With
// no -p and exactly want positionals, defaults.profile is used. The
// remaining positionals are returned.
func connect(ctx context.Context, rf remoteFlags, positionals []string, want int) (*remote, []string, error) {
	cfg, err := loadConfig(rf.configDir, rf.profile != "")
	if err != nil {
		return nil, nil, err
	}
	log.Setup(cfg.LogLevel)
	logger := log.WithComponent("cli")

	var (
		endpoint string
		prof     config.Profile
	)
	switch {
	case rf.profile != "":
		if _, prof, err = cfg.Profile(rf.profile); err != nil {
			return nil, nil, err
		}
		endpoint = prof.URL
	case len(positionals) == want+1:
		endpoint, positionals = positionals[0], positionals[1:]
	case len(positionals) == want && cfg.Defaults.Profile != "":
		if _, prof, err = cfg.Profile(""); err != nil {
			return nil, nil, err
		}
		endpoint = prof.URL
	default:
		return nil, nil, fmt.Errorf("%w: expected -p PROFILE or an endpoint followed by %d argument(s)", errdefs.ErrValidation, want)
	}
	if len(positionals) != want {
		return nil, nil, fmt.Errorf("%w: expected %d argument(s), got %d", errdefs.ErrValidation, want, len(positionals))
	}

	user, url, err := session.ParseEndpoint(endpoint)
	if err != nil {
		return nil, nil, err
	}

	r := &remote{logger: logger}
	if store, err := history.Open(ctx, cfg.StatePath()); err != nil {
		logger.Warn("history disabled", "path", cfg.StatePath(), "error", err)
	} else {
		r.history = store
	}

	r.seeded = prof.SessionID
	if r.seeded == "" && r.history != nil {
		if id, err := r.history.LoadSession(ctx, url, user); err != nil {
			logger.Warn("failed to load cached session", "error", err)
		} else {
			r.seeded = id
		}
	}

	opts := []session.Option{
		session.WithCredentials(session.Chain{session.EnvCredential(envPassword), prompt.NewProvider()}),
		session.WithRefreshAttempts(prof.RefreshAttempts()),
	}
	if prof.Timeout > 0 {
		opts = append(opts, session.WithHTTPClient(&http.Client{Timeout: prof.Timeout}))
	}
	if r.seeded != "" {
		opts = append(opts, session.WithSessionID(r.seeded))
	}

	sess, err := session.New(user+"@"+url, opts...)
	if err != nil {
		r.close(ctx)
		return nil, nil, err
	}
	r.session = sess
	r.client = workflow.New(sess, log.WithSession(user, url))
	return r, positionals, nil
}

// close caches a token issued during the command and releases the store.
func (r *remote) close(ctx context.Context) {
	if r.history == nil {
		return
	}
	if r.session != nil {
		if id := r.session.ID(); id != "" && id != r.seeded {
			if err := r.history.SaveSession(ctx, r.session.URL(), r.session.User(), id); err != nil {
				r.logger.Warn("failed to cache session", "error", err)
			}
		}
	}
	_ = r.history.Close()
}
