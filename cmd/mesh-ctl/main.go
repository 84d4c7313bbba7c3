// Command mesh-ctl manages a Bluetooth Mesh network database from the
// command line.
//
// On first start it creates a network with a local provisioner; later
// starts restore it from the state directory. The interactive shell queries
// and configures the local node through its Configuration Server and
// imports or exports Mesh Configuration Database files.
//
// Usage:
//
//	mesh-ctl [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-state-dir string     Directory for the network and its security state
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-interactive          Enable interactive command mode
//	-reset                Clear all persisted state before starting
//	-protocol-log string  File path for protocol event logging (CBOR format)
//
// Examples:
//
//	# Start with an interactive shell
//	mesh-ctl -state-dir ~/.mesh-ctl -interactive
//
//	# Record protocol events for mesh-log
//	mesh-ctl -state-dir ~/.mesh-ctl -interactive -protocol-log mesh.mlog
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/blemesh/mesh-go/cmd/mesh-ctl/interactive"
	meshlog "github.com/blemesh/mesh-go/pkg/log"
	"github.com/blemesh/mesh-go/pkg/persistence"
	"github.com/blemesh/mesh-go/pkg/service"
)

var (
	configFile  = flag.String("config", "", "YAML configuration file")
	stateDir    = flag.String("state-dir", "", "Directory for the network and its security state")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	interact    = flag.Bool("interactive", false, "Enable interactive command mode")
	reset       = flag.Bool("reset", false, "Clear all persisted state before starting")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var fileCfg FileConfig
	if *configFile != "" {
		var err error
		if fileCfg, err = LoadConfig(*configFile); err != nil {
			return err
		}
	}
	// Flags win over the file.
	if *stateDir != "" {
		fileCfg.StateDir = *stateDir
	}
	if *protocolLog != "" {
		fileCfg.ProtocolLog = *protocolLog
	}
	if fileCfg.StateDir == "" {
		return fmt.Errorf("state directory required (-state-dir or state_dir)")
	}
	if fileCfg.NetworkName == "" {
		fileCfg.NetworkName = "Mesh Network"
	}
	if fileCfg.ProvisionerName == "" {
		fileCfg.ProvisionerName = "mesh-ctl"
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return err
	}
	svcCfg, err := fileCfg.ServiceConfig()
	if err != nil {
		return err
	}

	networkDir := filepath.Join(fileCfg.StateDir, "network")
	secureDir := filepath.Join(fileCfg.StateDir, "secure")
	storage := persistence.NewFileNetworkStorage(networkDir)
	if *reset {
		if err := storage.Clear(); err != nil {
			return fmt.Errorf("clear network: %w", err)
		}
		if err := os.RemoveAll(secureDir); err != nil {
			return fmt.Errorf("clear security state: %w", err)
		}
	}

	secure, err := persistence.OpenBadgerSecureStorage(secureDir)
	if err != nil {
		return err
	}
	defer secure.Close()

	// The shell owns the terminal, so logs go through it.
	var shell *interactive.Shell
	var logOut io.Writer = os.Stderr
	if *interact {
		// The manager is attached below; readline must exist first.
		if shell, err = interactive.New(); err != nil {
			return err
		}
		logOut = shell.Stdout()
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	svcCfg.Logger = logger

	var protocolLoggers []meshlog.Logger
	if fileCfg.ProtocolLog != "" {
		fileLogger, err := meshlog.NewRotatingFileLogger(fileCfg.ProtocolLog, fileCfg.ProtocolLogMaxSize)
		if err != nil {
			return fmt.Errorf("create protocol logger: %w", err)
		}
		defer fileLogger.Close()
		protocolLoggers = append(protocolLoggers, fileLogger)
		logger.Info("protocol logging enabled", "path", fileCfg.ProtocolLog)
	}
	if level <= slog.LevelDebug {
		protocolLoggers = append(protocolLoggers, meshlog.NewSlogAdapter(logger))
	}
	svcCfg.ProtocolLogger = meshlog.NewMultiLogger(protocolLoggers...)

	mgr, err := service.NewNetworkManager(storage, secure, svcCfg)
	if err != nil {
		return err
	}
	loaded, err := mgr.Load()
	if err != nil {
		return err
	}
	if loaded {
		net := mgr.Network()
		logger.Info("network loaded", "name", net.Name(), "uuid", net.UUID(), "nodes", len(net.Nodes()))
	} else {
		net, err := mgr.Create(fileCfg.NetworkName, fileCfg.ProvisionerName)
		if err != nil {
			return err
		}
		logger.Info("network created", "name", net.Name(), "uuid", net.UUID(), "path", storage.Path(net.UUID()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if shell != nil {
		shell.Attach(mgr)
		go shell.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := mgr.Save(); err != nil {
		logger.Warn("failed to save network", "error", err)
	}
	return nil
}
