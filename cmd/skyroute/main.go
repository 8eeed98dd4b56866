package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/skyroute/billing"
	"github.com/hrygo/skyroute/dispatch"
	"github.com/hrygo/skyroute/engine"
	"github.com/hrygo/skyroute/gatekeeper"
	"github.com/hrygo/skyroute/internal/profile"
	"github.com/hrygo/skyroute/internal/version"
	"github.com/hrygo/skyroute/llm"
	"github.com/hrygo/skyroute/metrics"
	"github.com/hrygo/skyroute/notify"
	"github.com/hrygo/skyroute/offline"
	"github.com/hrygo/skyroute/provider"
	"github.com/hrygo/skyroute/routing"
	"github.com/hrygo/skyroute/store"
	"github.com/hrygo/skyroute/store/db/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "skyroute",
	Short: `Routes conversational requests to the cheapest capable LLM backend, tolerating provider failures and connectivity loss.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Try to load .env from the current directory; ignore when absent.
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:             viper.GetString("mode"),
			Data:             viper.GetString("data"),
			DSN:              viper.GetString("dsn"),
			ProbeURL:         viper.GetString("probe-url"),
			ProbeIntervalSec: viper.GetInt("probe-interval"),
			MetricsAddr:      viper.GetString("metrics-addr"),
			Version:          version.String(),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		driver, err := sqlite.NewDB(instanceProfile.DSN)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			return
		}
		storeInstance := store.New(driver)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return
		}
		defer storeInstance.Close()

		localLLM, err := llm.NewService(&llm.Config{
			Provider: "ollama",
			Model:    instanceProfile.LocalLLMModel,
			BaseURL:  instanceProfile.LocalLLMBaseURL,
			Timeout:  30,
		})
		if err != nil {
			slog.Error("failed to create local llm client", "error", err)
			return
		}
		localLLM.Warmup(ctx)

		registry := provider.Default()
		gate := billing.NewGate(billing.NewMemoryLedger())
		resolver := routing.NewResolver(registry, storeInstance, instanceProfile.PlatformKeys)
		notifier := notify.NewFanout(map[notify.Channel]notify.Sink{
			notify.ChannelPopup: notify.SinkFunc(func(_ context.Context, n notify.Notification) error {
				slog.Info("notification", "type", string(n.Type), "title", n.Title, "body", n.Body)
				return nil
			}),
		})
		exporter := metrics.NewExporter(metrics.Config{})

		classifier := gatekeeper.NewClassifier(localLLM)
		dispatcher := dispatch.NewDispatcher(storeInstance, notifier, nil)

		// No dispatch callback here: the engine installs its replay path,
		// so queued tasks are resolved and billed like live ones.
		queue := offline.NewQueue(storeInstance, notifier, nil)
		queue.SetMetrics(exporter)

		monitor := offline.NewMonitor(
			offline.HTTPProber(instanceProfile.ProbeURL, 5*time.Second),
			time.Duration(instanceProfile.ProbeIntervalSec)*time.Second,
		)
		monitor.SetMetrics(exporter)

		routerEngine, err := engine.New(engine.Config{
			Classifier: classifier,
			Resolver:   resolver,
			Gate:       gate,
			Registry:   registry,
			Dispatcher: dispatcher,
			Queue:      queue,
			Monitor:    monitor,
			Store:      storeInstance,
			Metrics:    exporter,
		})
		if err != nil {
			slog.Error("failed to create engine", "error", err)
			return
		}
		monitor.OnRecover(routerEngine.DrainQueue)

		// Recover anything orphaned by a previous crash before going live.
		dispatch.Sweep(ctx, storeInstance)
		monitor.Start(ctx)
		defer monitor.Stop()

		go runSweeps(ctx, storeInstance)

		if instanceProfile.MetricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", exporter.Handler())
				if err := http.ListenAndServe(instanceProfile.MetricsAddr, mux); err != nil {
					slog.Error("metrics server stopped", "error", err)
				}
			}()
		}

		printGreetings(instanceProfile)

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM. The default
		// signal sent by the `kill` command is SIGTERM, which is taken as
		// the graceful shutdown signal by most process managers.
		signal.Notify(c, terminationSignals...)
		<-c
		slog.Info("shutting down")
	},
}

// runSweeps runs the retention and liveness sweeps hourly.
func runSweeps(ctx context.Context, s *store.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dispatch.Sweep(ctx, s)
		}
	}
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("probe-interval", 30)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("probe-url", "", "reachability probe endpoint")
	rootCmd.PersistentFlags().Int("probe-interval", 30, "reachability probe interval in seconds")
	rootCmd.PersistentFlags().String("metrics-addr", "", "listen address for /metrics (empty disables)")

	for _, flag := range []string{"mode", "data", "dsn", "probe-url", "probe-interval", "metrics-addr"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("skyroute")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("skyroute %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}
	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Database: %s\n", p.DSN)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Local model: %s (%s)\n", p.LocalLLMModel, p.LocalLLMBaseURL)
	fmt.Printf("Probe: %s every %ds\n", p.ProbeURL, p.ProbeIntervalSec)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
