// Package headless runs an external-mode Auth from a stored credential and
// prints each auth state transition.
package headless

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/panyam/authbridge"
	"github.com/panyam/authbridge/authclient"
	"github.com/panyam/authbridge/credstore"
	credfs "github.com/panyam/authbridge/credstore/fs"
)

// AppName names the default credentials directory.
const AppName = "authbridge"

// ErrNotAuthenticated is returned by a -once run that settles signed out.
var ErrNotAuthenticated = errors.New("backend did not accept the stored credential")

// Config holds headless runner settings.
type Config struct {
	BackendURL      string `env:"PUBLIC_CONVEX_URL"`
	SiteURL         string `env:"PUBLIC_CONVEX_SITE_URL"`
	AuthURL         string `env:"AUTHBRIDGE_AUTH_URL"`
	CredentialsPath string `env:"AUTHBRIDGE_CREDENTIALS"`
	Verbose         bool   `env:"AUTHBRIDGE_VERBOSE"`

	// SaveToken is stored for AuthURL before the run starts.
	SaveToken string
	// Once exits after the first settled state.
	Once bool
}

// ParseConfig reads the environment and applies flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := authbridge.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "backend deployment URL")
	fs.StringVar(&cfg.AuthURL, "auth-url", cfg.AuthURL, "auth provider base URL (default: PUBLIC_CONVEX_SITE_URL + /api/auth)")
	fs.StringVar(&cfg.CredentialsPath, "credentials", cfg.CredentialsPath, "credentials file (default: ~/.config/authbridge/credentials.json)")
	fs.StringVar(&cfg.SaveToken, "save-token", "", "store this provider token before starting")
	fs.BoolVar(&cfg.Once, "once", false, "exit after the first settled state")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.AuthURL == "" && cfg.SiteURL != "" {
		cfg.AuthURL = strings.TrimRight(cfg.SiteURL, "/") + authclient.DefaultBasePath
	}
	if cfg.AuthURL == "" {
		return Config{}, errors.New("auth URL is required (-auth-url or PUBLIC_CONVEX_SITE_URL)")
	}
	return cfg, nil
}

// Run starts the Auth and prints transitions to out until ctx is done, or
// until the state settles when cfg.Once is set.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	return run(ctx, cfg, out, nil)
}

func run(ctx context.Context, cfg Config, out io.Writer, backend authbridge.BackendClient) error {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := credfs.New(cfg.CredentialsPath, AppName)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	store.Logger = logger

	if cfg.SaveToken != "" {
		cred := &credstore.Credential{
			AccessToken: cfg.SaveToken,
			TokenType:   "Bearer",
			Kind:        credstore.KindSession,
			CreatedAt:   time.Now(),
		}
		if err := store.SetCredential(cfg.AuthURL, cred); err != nil {
			return fmt.Errorf("store credential: %w", err)
		}
		if err := store.Save(); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}
		fmt.Fprintf(out, "saved credential for %s to %s\n", cfg.AuthURL, store.Path())
	}

	client, err := authclient.New(cfg.AuthURL, authclient.WithLogger(logger))
	if err != nil {
		return err
	}

	auth, err := authbridge.New(authbridge.Options{
		AuthClient:      client,
		Backend:         backend,
		BackendURL:      cfg.BackendURL,
		ExternalSession: &credstore.Session{Store: store, ServerURL: cfg.AuthURL},
		Logger:          logger,
		Verbose:         cfg.Verbose,
	})
	if err != nil {
		return err
	}
	defer auth.Close()

	settled := make(chan authbridge.AuthState, 1)
	unsubscribe := auth.Subscribe(func(state authbridge.AuthState) {
		fmt.Fprintf(out, "auth state: loading=%t authenticated=%t\n", state.IsLoading, state.IsAuthenticated)
		if !state.IsLoading {
			select {
			case settled <- state:
			default:
			}
		}
	})
	defer unsubscribe()

	if !cfg.Once {
		<-ctx.Done()
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case state := <-settled:
		if !state.IsAuthenticated {
			return ErrNotAuthenticated
		}
		return nil
	}
}
