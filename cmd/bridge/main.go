package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vendotrash/internal/bridge"
	"vendotrash/internal/config"
)

const (
	openPause  = 2 * time.Second
	settleWait = 2 * time.Second
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.LoadBridge()

	root := &cobra.Command{
		Use:           "bridge",
		Short:         "Serial bridge between the VendoTrash sorter and the API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	root.Flags().StringVar(&cfg.SerialPort, "port", cfg.SerialPort, "serial port of the board (auto-detected when empty)")
	root.Flags().IntVar(&cfg.BaudRate, "baud", cfg.BaudRate, "serial baud rate")
	root.Flags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "base URL of the API server")
	root.Flags().StringVar(&cfg.CameraURL, "camera-url", cfg.CameraURL, "snapshot URL of the chute camera")
	root.Flags().IntVar(&cfg.MachineID, "machine-id", cfg.MachineID, "id of this vending machine")
	root.Flags().StringVar(&cfg.MachineKey, "machine-key", cfg.MachineKey, "shared key for the bridge endpoints")

	root.AddCommand(newPortsCmd())
	return root
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "Print the serial port the bridge would auto-detect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, err := bridge.FindPort()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
}

func run(parent context.Context, cfg *config.BridgeConfig) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Bridge: VendoTrash serial bridge starting")

	path := cfg.SerialPort
	if path == "" {
		found, err := bridge.FindPort()
		if err != nil {
			return fmt.Errorf("%w (pass --port to choose one)", err)
		}
		path = found
	}

	port, err := bridge.OpenWithRetry(ctx, bridge.OpenSerial(cfg.BaudRate), path, cfg.OpenAttempts, openPause, settleWait)
	if err != nil {
		return err
	}

	server := bridge.NewServerClient(cfg.ServerURL, cfg.MachineKey, cfg.TokenTTL)
	camera := bridge.NewSnapshotCamera(cfg.CameraURL)

	if _, err := camera.Capture(ctx); err != nil {
		log.Printf("Bridge: camera test failed, continuing anyway: %v", err)
	} else {
		log.Println("Bridge: camera is working")
	}
	if err := server.Ping(ctx); err != nil {
		log.Printf("Bridge: server at %s not reachable yet: %v", cfg.ServerURL, err)
	} else {
		log.Printf("Bridge: server at %s is reachable", cfg.ServerURL)
	}

	err = bridge.New(port, server, camera, cfg.MachineID).Run(ctx)
	log.Println("Bridge: serial port closed")
	return err
}
