package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/picokube/picokube/controller"
	"github.com/picokube/picokube/engine"
	"github.com/picokube/picokube/observability"
	"github.com/picokube/picokube/runtime"
	"github.com/picokube/picokube/server"
	"github.com/picokube/picokube/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(servePort)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 3000, "port the REST API listens on")
}

// runServe assembles and runs the control plane: store, then engine, then
// API; teardown in reverse with a grace window for in-flight runtime calls.
func runServe(port int) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	metrics := observability.NewMetrics()
	st := store.New(log, metrics)
	rt := runtime.Instrument(runtime.NewPodman(log), metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// State is not persisted: discard whatever a previous run left behind.
	if err := rt.PruneOrphans(ctx); err != nil {
		log.Warn("startup sweep incomplete", "error", err)
	}

	eng := engine.New(st, metrics, log, engine.Options{})
	eng.Register(controller.NewPodController(st, rt, log).EngineController())
	eng.Register(controller.NewReplicaSetController(st, log).EngineController())
	eng.Register(controller.NewServiceController(st, rt, log).EngineController())
	eng.Start(ctx)

	api := server.NewAPIServer(st, eng, metrics, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- api.Start(port)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			eng.Stop()
			return err
		}
	}

	if err := api.Shutdown(context.Background()); err != nil {
		log.Warn("api shutdown", "error", err)
	}
	eng.Stop()
	log.Info("orchestrator stopped")
	return nil
}
