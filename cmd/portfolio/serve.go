package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"balance-checker/internal/handlers"
	"balance-checker/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var runOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run cycles on a schedule and serve the portfolio over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.repo.EnsureSchema(ctx); err != nil {
			return err
		}

		sched, err := service.NewScheduler(a.cycle, cfg.Schedule, a.log)
		if err != nil {
			return err
		}
		sched.Start(ctx, runOnStart)
		// runs before a.Close so no cycle outlives the store
		defer func() {
			stop()
			sched.Wait()
		}()

		h := handlers.NewHandler(a.cycle, a.valuator, a.repo, a.registry, a.repo, a.log)
		rg := gin.Default()
		h.Register(rg)

		srv := &http.Server{Addr: ":" + cfg.Port, Handler: rg}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		a.log.Infof("server starting on :%s, schedule %q", cfg.Port, cfg.Schedule)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&runOnStart, "run-now", true, "run a cycle immediately instead of waiting for the first tick")
	serveCmd.Flags().StringVarP(&reportFlag, "report", "o", "", "write the valuation of each cycle to this .xlsx or .csv file")
}
