// Package main implements a CLI that reports which authors' open pull
// requests across a set of GitHub repositories are still waiting for review.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/codeGROOVE-dev/unreviewed/pkg/config"
	"github.com/codeGROOVE-dev/unreviewed/pkg/fetch"
	"github.com/codeGROOVE-dev/unreviewed/pkg/github"
)

// cli is the command line grammar.
type cli struct {
	Config   string `help:"Configuration file." type:"path" placeholder:"PATH"`
	CacheDir string `help:"Response cache directory." type:"path" placeholder:"PATH" name:"cache-dir"`
	Verbose  bool   `help:"Log debug output to stderr." short:"v"`

	Check        checkCmd        `cmd:"" help:"Report open pull requests that need review."`
	SetConfig    setConfigCmd    `cmd:"" name:"setConfig" help:"Store a configuration value."`
	GetConfig    getConfigCmd    `cmd:"" name:"getConfig" help:"Print a configuration value."`
	DeleteConfig deleteConfigCmd `cmd:"" name:"deleteConfig" help:"Remove a configuration value."`
	ListConfig   listConfigCmd   `cmd:"" name:"listConfig" help:"Print every configuration value."`
}

// app carries what every command needs. It is built once per invocation.
type app struct {
	stdout    io.Writer
	now       func() time.Time
	newSource func(token string) (fetch.Source, error)
	store     *config.Store
	settings  config.Settings
	cacheDir  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil)
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the process exit status. A nil
// newSource talks to the GitHub API.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, newSource func(string) (fetch.Source, error)) int {
	var c cli
	exited := false
	parser, err := kong.New(&c,
		kong.Name("unreviewed"),
		kong.Description("Find open pull requests that still need a review."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) { exited = true }),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintf(stderr, "unreviewed: %v\n", err)
		return 1
	}
	kctx, err := parser.Parse(args)
	if exited {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "unreviewed: %v\n", err)
		return 1
	}

	logLevel := slog.LevelWarn
	if c.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logLevel,
	})).With("run", uuid.NewString())
	slog.SetDefault(logger)

	a, err := newApp(c, stdout, newSource)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		fmt.Fprintf(stderr, "unreviewed: %v\n", err)
		return 1
	}

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(a); err != nil {
		fmt.Fprintf(stderr, "unreviewed: %v\n", err)
		return 1
	}
	return 0
}

func newApp(c cli, stdout io.Writer, newSource func(string) (fetch.Source, error)) (*app, error) {
	configPath := c.Config
	if configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}
	settings, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}

	cacheDir := c.CacheDir
	if cacheDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("locating cache directory: %w", err)
		}
		cacheDir = filepath.Join(dir, "unreviewed")
	}

	if newSource == nil {
		newSource = newGitHubSource
	}

	return &app{
		stdout:    stdout,
		now:       time.Now,
		newSource: newSource,
		store:     config.NewStore(configPath),
		settings:  settings,
		cacheDir:  cacheDir,
	}, nil
}

func newGitHubSource(configured string) (fetch.Source, error) {
	token, err := github.ResolveToken(configured)
	if err != nil {
		return nil, err
	}
	client, err := github.New(github.Config{
		Token:       token,
		HTTPTimeout: github.DefaultHTTPTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating GitHub client: %w", err)
	}
	return client, nil
}

// errNotSet is returned by getConfig for a recognised but unset key.
var errNotSet = errors.New("not set")
