package tools

import (
	"errors"
	"net/http"
	"time"

	"github.com/martinemde/codebuddy/logger"
	"github.com/martinemde/codebuddy/sandbox"
)

// Options bound what the built-in tools may do.
type Options struct {
	// MaxFileSize is the largest file read_file and search_in_files will load.
	MaxFileSize int64
	// MaxDepth caps get_directory_tree and recursive listings.
	MaxDepth         int
	MaxSearchResults int

	CommandTimeout    time.Duration
	MaxCommandTimeout time.Duration
	PythonTimeout     time.Duration
	// MaxOutputBytes caps each of stdout and stderr captured from a subprocess.
	MaxOutputBytes int64

	HTTPTimeout      time.Duration
	MaxResponseBytes int64

	// AllowedGitCommands lifts the block on network-touching git subcommands.
	AllowedGitCommands []string
	PythonPath         string
}

// DefaultOptions returns the limits used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxFileSize:       1 << 20,
		MaxDepth:          4,
		MaxSearchResults:  100,
		CommandTimeout:    60 * time.Second,
		MaxCommandTimeout: 10 * time.Minute,
		PythonTimeout:     30 * time.Second,
		MaxOutputBytes:    1 << 20,
		HTTPTimeout:       30 * time.Second,
		MaxResponseBytes:  100 << 10,
		PythonPath:        "python3",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = d.MaxFileSize
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MaxSearchResults <= 0 {
		o.MaxSearchResults = d.MaxSearchResults
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = d.CommandTimeout
	}
	if o.MaxCommandTimeout < o.CommandTimeout {
		o.MaxCommandTimeout = max(d.MaxCommandTimeout, o.CommandTimeout)
	}
	if o.PythonTimeout <= 0 {
		o.PythonTimeout = d.PythonTimeout
	}
	if o.MaxOutputBytes <= 0 {
		o.MaxOutputBytes = d.MaxOutputBytes
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = d.HTTPTimeout
	}
	if o.MaxResponseBytes <= 0 {
		o.MaxResponseBytes = d.MaxResponseBytes
	}
	if o.PythonPath == "" {
		o.PythonPath = d.PythonPath
	}
	return o
}

// Workspace is the project directory the tools operate on. Every path a tool
// receives goes through the workspace's validator before it touches disk.
type Workspace struct {
	validator *sandbox.Validator
	opts      Options
	http      *http.Client
	log       *logger.Entry
}

// NewWorkspace binds tools to a validator. Zero option fields take defaults.
func NewWorkspace(v *sandbox.Validator, opts Options) (*Workspace, error) {
	if v == nil {
		return nil, errors.New("tools: validator is required")
	}
	opts = opts.withDefaults()
	return &Workspace{
		validator: v,
		opts:      opts,
		http:      &http.Client{},
		log:       logger.Named("tools"),
	}, nil
}

// Root returns the canonical project root.
func (w *Workspace) Root() string { return w.validator.Root() }

// Options returns the effective limits.
func (w *Workspace) Options() Options { return w.opts }

// Validator returns the path policy.
func (w *Workspace) Validator() *sandbox.Validator { return w.validator }

// Resolve validates path and returns its canonical absolute form.
func (w *Workspace) Resolve(path string) (string, error) {
	resolved, err := w.validator.Validate(path)
	if err != nil {
		w.log.WithError(err).WithField("path", path).Warn("path rejected")
		return "", err
	}
	return resolved, nil
}

// Display renders an absolute path the way tool output shows it: relative to
// the root when inside it.
func (w *Workspace) Display(abs string) string {
	return w.validator.Relative(abs)
}
