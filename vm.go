// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package qfvm implements the quadratic funding VM: a single funding round
// whose proposals, votes and matched distribution are served over JSON-RPC.
package qfvm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/rpc/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/luxfi/database"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/utils/json"

	"github.com/luxfi/qfvm/config"
	"github.com/luxfi/qfvm/metrics"
	"github.com/luxfi/qfvm/phase"
	"github.com/luxfi/qfvm/round"
	"github.com/luxfi/qfvm/state"
)

const (
	// Version of the QF VM
	Version = "1.0.0"

	// VMID is the unique identifier for the QF VM
	VMID = "qfvm"
)

var (
	errVMShutdown       = errors.New("VM is shutting down")
	errNotBootstrapped  = errors.New("VM not bootstrapped")
	errAlreadyStarted   = errors.New("VM already initialized")
	errMissingDatabase  = errors.New("missing database")
	errRoundUnavailable = errors.New("round unavailable")
)

// VM serves a single quadratic funding round.
type VM struct {
	config.Config

	log      log.Logger
	db       database.Database
	clock    phase.Clock
	round    *round.Round
	metrics  metrics.Metrics
	registry metric.Registry

	rpcServer *rpc.Server

	stateLock    sync.RWMutex
	state        State
	shuttingDown bool
}

// Initialize opens the round stored in [db]. If the round has not been
// initialized yet, it is created from [genesisBytes].
func (vm *VM) Initialize(
	ctx context.Context,
	db database.Database,
	genesisBytes []byte,
	configBytes []byte,
) error {
	vm.stateLock.Lock()
	defer vm.stateLock.Unlock()

	if vm.state != Unknown {
		return errAlreadyStarted
	}
	if db == nil {
		return errMissingDatabase
	}
	if vm.log == nil {
		vm.log = log.NoLog{}
	}

	// Parse configuration
	if len(configBytes) > 0 {
		cfg, err := config.ParseConfig(configBytes)
		if err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		vm.Config = cfg
	}
	if err := vm.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	vm.registry = metric.NewRegistry()
	if vm.Config.MetricsEnabled {
		m, err := metrics.New(VMID, vm.registry)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		vm.metrics = m
	} else {
		vm.metrics = metrics.Noop{}
	}

	vm.db = db
	vm.round = round.New(db, vm.Config, vm.log, vm.metrics)
	vm.state = Bootstrapping

	if err := vm.initializeRound(genesisBytes); err != nil {
		return err
	}

	// Initialize HTTP handlers
	if err := vm.initializeHTTPHandlers(); err != nil {
		return fmt.Errorf("failed to initialize HTTP handlers: %w", err)
	}

	vm.log.Info("QF VM initialized",
		log.String("version", Version),
		log.Uint64("height", vm.clock.Height()),
		log.Bool("metricsEnabled", vm.Config.MetricsEnabled),
	)
	return nil
}

func (vm *VM) initializeRound(genesisBytes []byte) error {
	_, err := vm.round.Config()
	switch {
	case err == nil:
		vm.log.Info("loaded existing round")
		return nil
	case !errors.Is(err, state.ErrNotInitialized):
		return fmt.Errorf("failed to load round: %w", err)
	case len(genesisBytes) == 0:
		vm.log.Warn("starting without a round")
		return nil
	}

	g, err := ParseGenesis(genesisBytes)
	if err != nil {
		return err
	}
	vm.clock.SetHeight(g.Height)

	_, err = vm.round.Initialize(g.Creator, vm.clock.Block(), g.Round, []round.Coin{g.Budget})
	if err != nil {
		return fmt.Errorf("failed to initialize round from genesis: %w", err)
	}
	return nil
}

// SetState transitions the VM lifecycle.
func (vm *VM) SetState(_ context.Context, s State) error {
	vm.stateLock.Lock()
	defer vm.stateLock.Unlock()

	if vm.shuttingDown {
		return errVMShutdown
	}
	vm.log.Info("QF VM state transition", log.Stringer("state", s))
	vm.state = s
	return nil
}

// IsBootstrapped reports whether the VM accepts operations.
func (vm *VM) IsBootstrapped() bool {
	vm.stateLock.RLock()
	defer vm.stateLock.RUnlock()

	return vm.state == NormalOp && !vm.shuttingDown
}

// Shutdown shuts down the VM.
func (vm *VM) Shutdown(context.Context) error {
	vm.stateLock.Lock()
	defer vm.stateLock.Unlock()

	if vm.shuttingDown {
		return nil
	}
	vm.shuttingDown = true

	vm.log.Info("shutting down QF VM")
	if vm.db != nil {
		if err := vm.db.Close(); err != nil {
			vm.log.Error("failed to close database", log.Err(err))
			return err
		}
	}
	return nil
}

// Version returns the VM version.
func (*VM) Version(context.Context) (string, error) {
	return Version, nil
}

// Clock returns the block oracle the round is evaluated against.
func (vm *VM) Clock() *phase.Clock {
	return &vm.clock
}

// Round returns the round served by the VM.
func (vm *VM) Round() *round.Round {
	return vm.round
}

// Gatherer exposes the VM's metrics in the prometheus exposition model.
func (vm *VM) Gatherer() prometheus.Gatherer {
	return prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
		mfs, err := vm.registry.Gather()
		return metric.NativeToDTO(mfs), err
	})
}

// CreateHandlers returns HTTP handlers for the VM.
func (vm *VM) CreateHandlers(context.Context) (map[string]http.Handler, error) {
	if vm.rpcServer == nil {
		return nil, errRoundUnavailable
	}
	return map[string]http.Handler{
		"/rpc": vm.rpcServer,
	}, nil
}

func (vm *VM) initializeHTTPHandlers() error {
	vm.rpcServer = rpc.NewServer()

	codec := json.NewCodec()
	vm.rpcServer.RegisterCodec(codec, "application/json")
	vm.rpcServer.RegisterCodec(codec, "application/json;charset=UTF-8")
	vm.rpcServer.RegisterInterceptFunc(vm.metrics.InterceptRequest)
	vm.rpcServer.RegisterAfterFunc(vm.metrics.AfterRequest)
	return vm.rpcServer.RegisterService(&Service{vm: vm}, vm.Config.RPCNamespace)
}

// ready returns an error unless operations can be served.
func (vm *VM) ready() error {
	vm.stateLock.RLock()
	defer vm.stateLock.RUnlock()

	switch {
	case vm.shuttingDown:
		return errVMShutdown
	case vm.state != NormalOp:
		return errNotBootstrapped
	default:
		return nil
	}
}
