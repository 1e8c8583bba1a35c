// Package testuser provisions the user end-to-end tests sign in with.
package testuser

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/panyam/authbridge"
	"github.com/panyam/authbridge/authclient"
)

// DefaultEnvFile is loaded before the environment is read, when present.
const DefaultEnvFile = ".env.test"

var (
	// ErrMissingCredentials is returned when no email or password is configured.
	ErrMissingCredentials = errors.New("TEST_USER_EMAIL and TEST_USER_PASSWORD must be set")
	// ErrWrongPassword is returned when the user exists but sign in fails.
	ErrWrongPassword = errors.New("test user exists but credentials are incorrect")
	// ErrUnreachable is returned when the site cannot be reached.
	ErrUnreachable = errors.New("could not connect to the server")
)

// Result says what Provision did.
type Result int

const (
	Created Result = iota + 1
	Verified
)

func (r Result) String() string {
	switch r {
	case Created:
		return "created"
	case Verified:
		return "verified"
	}
	return "unknown"
}

// Config holds test user provisioning settings.
type Config struct {
	SiteURL  string `env:"SITE_URL" envDefault:"http://localhost:5173"`
	Email    string `env:"TEST_USER_EMAIL"`
	Password string `env:"TEST_USER_PASSWORD"`
	Name     string `env:"TEST_USER_NAME" envDefault:"Test User"`
	Verbose  bool   `env:"AUTHBRIDGE_VERBOSE"`

	EnvFile string
}

// ParseConfig loads the env file named by -env-file, reads the environment
// and applies flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var (
		envFile = fs.String("env-file", DefaultEnvFile, "dotenv file to load first (missing is fine)")
		siteURL = fs.String("site-url", "", "site URL, overrides SITE_URL")
		email   = fs.String("email", "", "test user email, overrides TEST_USER_EMAIL")
		name    = fs.String("name", "", "test user name, overrides TEST_USER_NAME")
		verbose = fs.Bool("v", false, "log provider requests")
	)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *envFile != "" {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", *envFile, err)
		}
	}

	cfg := Config{EnvFile: *envFile}
	if err := authbridge.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if *siteURL != "" {
		cfg.SiteURL = *siteURL
	}
	if *email != "" {
		cfg.Email = *email
	}
	if *name != "" {
		cfg.Name = *name
	}
	if *verbose {
		cfg.Verbose = true
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return cfg, nil
}

// PromptPassword asks for the password when none is configured and stdin is
// a terminal.
func (c *Config) PromptPassword(in *os.File, out io.Writer) error {
	if c.Password != "" || c.Email == "" || !term.IsTerminal(int(in.Fd())) {
		return nil
	}
	fmt.Fprintf(out, "Password for %s: ", c.Email)
	password, err := term.ReadPassword(int(in.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	c.Password = string(password)
	return nil
}

// Run provisions the configured test user and reports progress to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if cfg.Email == "" || cfg.Password == "" {
		return ErrMissingCredentials
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	client, err := authclient.New(cfg.SiteURL+authclient.DefaultBasePath, authclient.WithLogger(logger))
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Setting up test user...")
	fmt.Fprintf(out, "   Email: %s\n", cfg.Email)
	fmt.Fprintf(out, "   Name: %s\n", cfg.Name)
	fmt.Fprintf(out, "   Site URL: %s\n", cfg.SiteURL)

	result, err := Provision(ctx, client, cfg.Email, cfg.Password, cfg.Name)
	if err != nil {
		return err
	}
	switch result {
	case Created:
		fmt.Fprintln(out, "Test user created successfully.")
	case Verified:
		fmt.Fprintln(out, "Test user already exists, credentials verified.")
	}
	return nil
}

// Accounts is the part of the provider client Provision needs.
type Accounts interface {
	SignUpEmail(ctx context.Context, email, password, name string) (*authclient.AuthResponse, error)
	SignInEmail(ctx context.Context, email, password string) (*authclient.AuthResponse, error)
}

// Provision signs the user up. When the user already exists it signs in
// instead, to check that the configured password still works.
func Provision(ctx context.Context, accounts Accounts, email, password, name string) (Result, error) {
	_, err := accounts.SignUpEmail(ctx, email, password, name)
	if err == nil {
		return Created, nil
	}
	if authbridge.IsNetworkError(err) {
		return 0, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	var apiErr *authclient.APIError
	if !errors.As(err, &apiErr) || !userExists(apiErr) {
		return 0, fmt.Errorf("create test user: %w", err)
	}

	if _, err := accounts.SignInEmail(ctx, email, password); err != nil {
		if authbridge.IsNetworkError(err) {
			return 0, fmt.Errorf("%w: %w", ErrUnreachable, err)
		}
		if errors.As(err, &apiErr) {
			return 0, fmt.Errorf("%w: %w", ErrWrongPassword, err)
		}
		return 0, fmt.Errorf("verify test user: %w", err)
	}
	return Verified, nil
}

func userExists(err *authclient.APIError) bool {
	return err.Status == 400 ||
		err.Code == "USER_ALREADY_EXISTS" ||
		strings.Contains(err.Message, "already exists")
}

// ExitCode maps a Run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUnreachable):
		return 3
	case errors.Is(err, ErrWrongPassword):
		return 2
	}
	return 1
}
