// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"

	"github.com/luxfi/qfvm"
	qfconfig "github.com/luxfi/qfvm/config"
)

const shutdownTimeout = 5 * time.Second

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serves a funding round over JSON-RPC",
		RunE:  serveFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func serveFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	config, err := ParseFlags(flags, args)
	if err != nil {
		return err
	}

	ctx := c.Context()
	logger := log.NewLogger(qfvm.VMID)

	vmIntf, err := qfvm.NewFactory(qfconfig.DefaultConfig()).New(logger)
	if err != nil {
		return err
	}
	vm := vmIntf.(*qfvm.VM)
	if err := vm.Initialize(ctx, memdb.New(), config.GenesisBytes, config.ConfigBytes); err != nil {
		return err
	}
	defer func() {
		_ = vm.Shutdown(context.Background())
	}()
	if err := vm.SetState(ctx, qfvm.NormalOp); err != nil {
		return err
	}

	handlers, err := vm.CreateHandlers(ctx)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	for path, handler := range handlers {
		mux.Handle(path, handler)
	}
	mux.Handle("/metrics", promhttp.HandlerFor(vm.Gatherer(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr: config.HTTPAddress,
		Handler: cors.New(cors.Options{
			AllowedOrigins:   config.AllowedOrigins,
			AllowCredentials: true,
		}).Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("serving round",
		log.String("address", config.HTTPAddress),
		log.Duration("blockInterval", config.BlockInterval),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		advanceBlocks(ctx, vm, config.BlockInterval)
		return nil
	})
	g.Go(func() error {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// advanceBlocks moves the VM's block height forward once per [interval].
func advanceBlocks(ctx context.Context, vm *qfvm.VM, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			vm.Clock().Advance(1, interval)
		case <-ctx.Done():
			return
		}
	}
}
