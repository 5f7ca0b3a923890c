package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attachctl/attachctl/pkg/api"
	"github.com/attachctl/attachctl/pkg/computehook"
	"github.com/attachctl/attachctl/pkg/config"
	"github.com/attachctl/attachctl/pkg/log"
	"github.com/attachctl/attachctl/pkg/pageserverclient"
	"github.com/attachctl/attachctl/pkg/registry"
	"github.com/attachctl/attachctl/pkg/service"
	"github.com/attachctl/attachctl/pkg/shardstate"
	"github.com/attachctl/attachctl/pkg/storage"
	"github.com/attachctl/attachctl/pkg/types"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "attachd",
	Short:   "attachd is the attachment control plane for sharded page servers",
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("attachd version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("listen", "", "override listen_addr from config")
	rootCmd.PersistentFlags().String("data-dir", "", "override data_dir from config")
	rootCmd.PersistentFlags().String("log-level", "", "override log_level from config")
	rootCmd.PersistentFlags().Bool("log-json", false, "force JSON log output")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetBool("log-json"); v {
		cfg.LogJSON = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("attachd")

	reg := registry.New()
	shards := shardstate.NewStore()
	gen := types.NewGenerationCounter()
	ps := pageserverclient.New(cfg.PageServerTimeout)

	var store storage.Store
	if cfg.DataDir != "" {
		bolt, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer bolt.Close()
		store = bolt
		if err := restoreState(store, reg, shards, gen); err != nil {
			return fmt.Errorf("restore state: %w", err)
		}
	}

	hookCtx, cancelHook := context.WithCancel(context.Background())
	defer cancelHook()
	hook := computehook.New(noopNotifier{})
	go hook.Run(hookCtx)

	svc := service.New(cfg, reg, shards, gen, hook, ps)
	srv := api.New(svc)

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// restoreState loads a prior run's node registry and shard state from
// store so a restart doesn't forget placement decisions.
func restoreState(store storage.Store, reg *registry.Registry, shards *shardstate.Store, gen *types.GenerationCounter) error {
	nodes, err := store.ListNodes()
	if err != nil {
		return err
	}
	for _, n := range nodes {
		reg.Register(n.Id, n.ListenAddrs)
	}

	snaps, err := store.ListShards()
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		state := shardstate.New(snap.TenantShardID, snap.Shard, snap.Policy)
		state.TenantConf = snap.TenantConf
		state.Generation = snap.Generation
		state.Intent = snap.Intent
		state.Observed = snap.Observed
		state.Sequence = snap.Sequence
		shards.Put(state)
		gen.Set(snap.TenantShardID, snap.Generation)
	}
	return nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyAttachment(context.Context, computehook.Notification) error { return nil }
