package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"squeeze/internal/blobstore"
	"squeeze/internal/capacity"
	"squeeze/internal/config"
	"squeeze/internal/lifecycle"
	"squeeze/internal/logging"
	"squeeze/internal/metrics"
	"squeeze/internal/remote"
	"squeeze/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolvedPath
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// session bundles the wired subsystems a cache-aware command needs. The
// store may be nil: the coordinator then runs degraded and every cache
// operation is a miss, which is the documented network-only fallback.
type session struct {
	cfg            *config.Config
	logger         *slog.Logger
	store          *blobstore.Store
	client         *remote.Client
	coordinator    *lifecycle.Coordinator
	observer       *workflow.Observer
	tracker        *metrics.Tracker
	degradedReason string
}

func (s *session) degraded() bool {
	return s == nil || s.store == nil
}

func (s *session) close() {
	if s == nil {
		return
	}
	for _, op := range s.tracker.Snapshot().Operations {
		s.logger.Debug("operation latency", logging.String("stats", op.String()))
	}
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		logging.WarnWithContext(s.logger, "failed to close cache store", "store_close_failed",
			logging.Error(err))
	}
}

// withSession wires config, logger, store, service client, coordinator,
// and observer for the duration of fn, releasing the store lock when fn
// returns. A store that cannot be opened degrades the session instead of
// failing the command.
func (c *commandContext) withSession(fn func(*session) error) error {
	sess, err := c.newSession()
	if err != nil {
		return err
	}
	defer sess.close()
	return fn(sess)
}

func (c *commandContext) newSession() (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	logger := newSessionLogger(cfg)

	sess := &session{cfg: cfg, logger: logger, tracker: metrics.NewTracker()}

	store, err := blobstore.Open(cfg, logger)
	if err != nil {
		if errors.Is(err, blobstore.ErrLocked) {
			sess.degradedReason = "cache locked by another squeeze process"
		} else {
			sess.degradedReason = "cache store unavailable"
		}
		logging.WarnWithContext(logger, "continuing without cache", "store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "all cache operations become misses"))
	} else {
		sess.store = store
	}

	client, err := remote.New(cfg, logger)
	if err != nil {
		sess.close()
		return nil, err
	}
	sess.client = client

	governor := capacity.NewGovernor(sess.store, capacity.DefaultBudget, logger)
	sess.coordinator = lifecycle.New(sess.store, governor, client, logger, lifecycle.WithTracker(sess.tracker))
	sess.observer = workflow.NewObserver(sess.coordinator, logger)

	return sess, nil
}

// newSessionLogger keeps stdout free for command output: logs go to the
// configured log file, or stderr when no log directory is usable.
func newSessionLogger(cfg *config.Config) *slog.Logger {
	outputs := []string{"stderr"}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			outputs = []string{filepath.Join(dir, logging.LogFileName)}
		}
	}
	logger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      outputs,
		ErrorOutputPaths: outputs,
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
