package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sigbridge/internal/bus"
	"sigbridge/internal/config"
	"sigbridge/internal/domain"
	"sigbridge/internal/gateway"
	"sigbridge/internal/metrics"
	"sigbridge/internal/registry"
	"sigbridge/internal/signalapi"
	"sigbridge/internal/sink"
	"sigbridge/internal/state"

	"github.com/spf13/cobra"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the bridge (receive streams + HTTP status server)",
		Long:  "Connects every enabled account to the gateway's receive stream and serves normalized state over HTTP. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, cleanup, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer cleanup()
	logger = log

	if err := os.MkdirAll(cfg.Attachments.Dir, 0o755); err != nil {
		return fmt.Errorf("attachments dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := bus.New(100, logger)

	store := state.New(cfg.History.MaxMessages, logger)
	sinks := []domain.EventSink{store}

	var natsSink *sink.Nats
	if cfg.Nats.Enabled {
		natsSink, err = sink.NewNats(cfg.Nats.URL, cfg.Nats.Subject, logger)
		if err != nil {
			return fmt.Errorf("nats sink: %w", err)
		}
		defer natsSink.Close()
		sinks = append(sinks, natsSink)
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		bus.Dispatch(eventBus, logger, sinks...)
	}()

	reg := registry.New(logger)
	requestTimeout := time.Duration(cfg.Gateway.RequestTimeoutSeconds) * time.Second

	for _, acct := range cfg.Accounts {
		if !acct.Enabled {
			logger.Info("account disabled", "account", acct.ID)
			continue
		}

		apiClient := signalapi.NewClient(signalapi.ClientConfig{
			APIURL:         cfg.Gateway.APIURL,
			PhoneNumber:    acct.PhoneNumber,
			AttachmentsDir: cfg.Attachments.Dir,
			PublicBaseURL:  cfg.Attachments.PublicBaseURL,
			Timeout:        requestTimeout,
			Logger:         logger,
		})

		classifier := gateway.NewClassifier(gateway.ClassifierConfig{
			Groups:       apiClient,
			Attachments:  apiClient,
			FetchTimeout: requestTimeout,
			Logger:       logger,
		})

		mgr := gateway.NewManager(gateway.ConnConfig{
			Account:           acct.ID,
			APIURL:            cfg.Gateway.APIURL,
			PhoneNumber:       acct.PhoneNumber,
			ReconnectInterval: time.Duration(cfg.Gateway.ReconnectIntervalSeconds) * time.Second,
			MaxReconnectDelay: time.Duration(cfg.Gateway.MaxReconnectDelaySeconds) * time.Second,
			Logger:            logger,
		}, classifier, eventBus)

		if err := reg.Add(acct.ID, mgr); err != nil {
			return fmt.Errorf("register account: %w", err)
		}
	}

	if reg.Len() == 0 {
		return fmt.Errorf("no enabled accounts in %s", cfgPath)
	}

	reg.StartAll()

	var httpSrv *http.Server
	if cfg.Web.Enabled {
		httpSrv = statusServer(cfg, store, reg)
		go func() {
			logger.Info("status server listening", "addr", httpSrv.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status server error", "err", err)
			}
		}()
	}

	logger.Info("bridge started", "accounts", reg.Len())

	<-ctx.Done()
	logger.Info("shutting down bridge...")

	const shutdownTimeout = 15 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		reg.StopAll()
		if httpSrv != nil {
			httpSrv.Shutdown(shutdownCtx)
		}
		eventBus.Close()
		<-dispatchDone
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	return shutdownErr
}

// statusServer builds the HTTP surface: health, state snapshot, metrics.
func statusServer(cfg *config.Config, store *state.Store, reg *registry.Registry) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/state", func(w http.ResponseWriter, r *http.Request) {
		snap := store.Snapshot()
		// Accounts that have not reported yet still show up as unknown.
		for _, id := range reg.Accounts() {
			if _, ok := snap.Connections[id]; !ok {
				snap.Connections[id] = domain.StateUnknown
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	})

	if cfg.Metrics.Enabled {
		endpoint := cfg.Metrics.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		mux.HandleFunc(endpoint, metrics.Collector.Handler())
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
