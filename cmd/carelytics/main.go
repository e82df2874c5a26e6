package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	adapthttp "carelytics/internal/adapter/http"
	"carelytics/internal/app"
	"carelytics/internal/config"
	"carelytics/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "carelytics",
		Short:        "Patient record API with derived BMI and health verdicts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate every stored patient record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, cfgPath)
		},
	})
	return root
}

type deps struct {
	cfg   *config.Config
	log   *zap.Logger
	svc   *app.PatientService
	close func()
}

func setup(ctx context.Context, cfgPath string) (*deps, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return &deps{
		cfg: cfg,
		log: log,
		svc: app.NewPatientService(store, log.Named("patients")),
		close: func() {
			closeStore()
			_ = log.Sync()
		},
	}, nil
}

func runServe(ctx context.Context, cfgPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer rt.close()

	h := adapthttp.New(rt.svc, rt.log.Named("http")).
		WithRateLimit(rt.cfg.HTTP.RateLimit, rt.cfg.HTTP.Burst).
		Handler()

	srv := &http.Server{
		Addr:              rt.cfg.Addr,
		Handler:           h,
		ReadTimeout:       rt.cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: rt.cfg.HTTP.ReadTimeout,
		WriteTimeout:      rt.cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("listening", zap.String("addr", rt.cfg.Addr), zap.String("store", rt.cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	rt.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runCheck(cmd *cobra.Command, cfgPath string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	rt, err := setup(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := rt.svc.Check(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, inv := range report.Invalid {
		_, _ = fmt.Fprintf(out, "%s: %v\n", inv.ID, inv.Err)
	}
	_, _ = fmt.Fprintf(out, "%d records, %d invalid\n", report.Total, len(report.Invalid))
	if len(report.Invalid) > 0 {
		return fmt.Errorf("%d invalid records", len(report.Invalid))
	}
	return nil
}
