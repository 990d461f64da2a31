// Package bridge connects the sorter's microcontroller to the API server. The
// board writes READY when an item lands in the chute; the bridge photographs
// it, asks the server for a verdict and writes the resulting signal back.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"vendotrash/internal/domain"
)

const lineReady = "READY"

type Bridge struct {
	port      Port
	server    *ServerClient
	camera    Camera
	machineID int

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func New(port Port, server *ServerClient, camera Camera, machineID int) *Bridge {
	return &Bridge{port: port, server: server, camera: camera, machineID: machineID}
}

// Run reads lines from the board until ctx is cancelled or the port fails.
// The port is closed when Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	defer b.closePort()
	go func() {
		select {
		case <-ctx.Done():
			b.closePort()
		case <-done:
		}
	}()

	log.Printf("Bridge: waiting for %s from the board", lineReady)
	reader := bufio.NewReader(b.port)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			b.handleLine(ctx, line)
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				log.Printf("Bridge: serial loop stopped")
				return nil
			}
			return fmt.Errorf("Bridge.Run: reading serial port: %w", err)
		}
	}
}

func (b *Bridge) closePort() {
	b.closeOnce.Do(func() {
		if err := b.port.Close(); err != nil {
			log.Printf("Bridge: closing serial port: %v", err)
		}
	})
}

func (b *Bridge) handleLine(ctx context.Context, line string) {
	switch {
	case line == lineReady:
		b.send(b.handleReady(ctx))
	case strings.HasPrefix(line, "TRASH DETECTED"), strings.HasPrefix(line, "SYSTEM READY"):
		log.Printf("Bridge: board status: %s", line)
	default:
		log.Printf("Bridge: board says %q", line)
	}
}

// handleReady runs one deposit and returns the signal for the board.
func (b *Bridge) handleReady(ctx context.Context) domain.Signal {
	log.Printf("Bridge: item detected, checking for an active session")
	active, err := b.server.SessionActive(ctx)
	if err != nil {
		log.Printf("Bridge: session check failed: %v", err)
		return domain.SignalError
	}
	if !active {
		log.Printf("Bridge: no active session, customer must press Insert first")
		return domain.SignalNoSession
	}

	image, err := b.camera.Capture(ctx)
	if err != nil {
		log.Printf("Bridge: capture failed: %v", err)
		return domain.SignalError
	}

	return b.server.ClassifyDeposit(ctx, image, b.machineID)
}

func (b *Bridge) send(sig domain.Signal) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := io.WriteString(b.port, string(sig)+"\n"); err != nil {
		log.Printf("Bridge: writing %s to board: %v", sig, err)
		return
	}
	log.Printf("Bridge: sent %s", sig)
}
