package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/newthinker/cardquant/internal/app"
	"github.com/newthinker/cardquant/internal/config"
	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/metrics"
	"github.com/newthinker/cardquant/internal/notifier"
	"github.com/newthinker/cardquant/internal/notifier/telegram"
	"github.com/newthinker/cardquant/internal/notifier/webhook"
	"github.com/newthinker/cardquant/internal/router"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-analyze the watchlist on a schedule and serve metrics",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	log := rt.log

	a := app.New(rt.cfg, rt.pipeline, rt.metrics, log)
	if len(a.GetWatchlist()) == 0 {
		return fmt.Errorf("watchlist is empty")
	}

	notifiers, err := buildNotifiers(rt.cfg)
	if err != nil {
		return err
	}
	if n := len(notifiers.GetAll()); n > 0 {
		a.SetRouter(router.New(routerConfig(rt.cfg.Router), notifiers, log))
		log.Info("alerts enabled", zap.Int("notifiers", n))
	}

	var server *http.Server
	if rt.cfg.Metrics.Enabled {
		server = newMetricsServer(rt.cfg.Metrics.Addr, rt.cfg.Metrics.Path, rt.metrics, log)
		go func() {
			log.Info("metrics server listening", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	err = a.Start(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			log.Warn("metrics server shutdown", zap.Error(serr))
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newMetricsServer(addr, path string, reg *metrics.Registry, log *zap.Logger) *http.Server {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, reg.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(reg)(handler)
	handler = metrics.LoggingMiddleware(log)(handler)

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func buildNotifiers(cfg *config.Config) (*notifier.Registry, error) {
	registry := notifier.NewRegistry()
	for name, nc := range cfg.Notifiers {
		if !nc.Enabled {
			continue
		}

		var n notifier.Notifier
		params := map[string]any{}
		switch name {
		case "webhook":
			n = webhook.New(nc.URL, nc.Headers)
			params["url"] = nc.URL
		case "telegram":
			n = telegram.New(nc.BotToken, nc.ChatID)
			params["bot_token"] = nc.BotToken
			params["chat_id"] = nc.ChatID
		default:
			return nil, fmt.Errorf("unknown notifier %q", name)
		}

		if err := n.Init(notifier.Config{Type: name, Params: params}); err != nil {
			return nil, err
		}
		if err := registry.Register(n); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func routerConfig(rc config.RouterConfig) router.Config {
	actions := make([]core.Action, 0, len(rc.EnabledActions))
	for _, a := range rc.EnabledActions {
		actions = append(actions, core.Action(strings.ToUpper(a)))
	}
	return router.Config{
		MinConfidence:    rc.MinConfidence,
		CooldownDuration: time.Duration(rc.CooldownHours) * time.Hour,
		EnabledActions:   actions,
		OnlyChanges:      rc.OnlyChanges,
	}
}
