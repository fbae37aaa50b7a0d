package cardserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/r9s-ai/cardq/internal/logx"
	"github.com/r9s-ai/cardq/internal/metrics"
	"github.com/r9s-ai/cardq/internal/store"
	"github.com/r9s-ai/cardq/pkg/config"
)

const shutdownTimeout = 10 * time.Second

// Run loads cfgPath and serves until SIGINT or SIGTERM.
func Run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logx.New(cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if logger.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	access, accessClose, err := openAccessLog(cfg, logger)
	if err != nil {
		return fmt.Errorf("init access log: %w", err)
	}
	if accessClose != nil {
		defer func() { _ = accessClose.Close() }()
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	srv, err := New(cfg, st, logger, m)
	if err != nil {
		return err
	}

	hs := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           NewRouter(srv, access),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info().
			Str("listen", cfg.Server.Listen).
			Str("prefix", cfg.Server.DAVPrefix).
			Str("store", cfg.Store.Driver).
			Msg("cardq listening")
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("run: %w", err)
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type nopCloser struct{ io.Writer }

func (n nopCloser) Close() error { return nil }

// openAccessLog builds the access logger. Lines go to stdout unless
// access_log_path names a file.
func openAccessLog(cfg *config.Config, logger zerolog.Logger) (*AccessLog, io.Closer, error) {
	if cfg == nil || !cfg.Logging.AccessLog {
		return nil, nil, nil
	}
	format, err := logx.ResolveAccessLogFormat(cfg.Logging.AccessLogFormat, cfg.Logging.AccessLogFormatPreset)
	if err != nil {
		return nil, nil, err
	}
	formatter, err := logx.CompileAccessLogFormat(format)
	if err != nil {
		return nil, nil, err
	}

	var out io.WriteCloser = nopCloser{os.Stdout}
	color := logx.ColorEnabled()
	structured := logger.With().Str("component", "access").Logger()
	if path := strings.TrimSpace(cfg.Logging.AccessLogPath); path != "" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, nil, err
			}
		}
		// #nosec G304 -- access_log_path comes from trusted config/env.
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, err
		}
		out, color = f, false
		structured = zerolog.New(f).With().Timestamp().Logger()
	}

	console := false
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "console":
		console = true
	case "":
		console = logx.IsTerminal(os.Stdout)
	}
	return &AccessLog{
		Out:        out,
		Logger:     structured,
		Formatter:  formatter,
		Color:      color,
		Structured: formatter == nil && !console,
	}, out, nil
}
