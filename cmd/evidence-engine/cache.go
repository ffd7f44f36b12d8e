// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/evidence-engine/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the source result cache",
}

var cacheProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the configured cache backend is reachable",
	Long: `Probe opens the configured cache backend (memory, badger, redis, sqlite)
and pings it. An unreachable backend is not fatal to the pipeline, which
then runs without caching; probe reports it so it can be fixed.`,
	RunE: runCacheProbe,
}

func runCacheProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	c, err := cache.Open(cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := cmd.OutOrStdout()
	backend := cfg.Cache.Backend
	if backend == "" {
		backend = "memory"
	}
	if !c.Available(ctx) {
		fmt.Fprintf(out, "cache backend %s: unavailable (pipeline will run uncached)\n", backend)
		return fmt.Errorf("cache backend %s unavailable", backend)
	}
	fmt.Fprintf(out, "cache backend %s: available (ttl %s)\n", backend, cfg.Cache.TTL)
	return nil
}

func init() {
	cacheCmd.AddCommand(cacheProbeCmd)
	rootCmd.AddCommand(cacheCmd)
}
