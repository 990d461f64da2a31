package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const DefaultBaudRate = 9600

var ErrPortNotFound = errors.New("no microcontroller serial port found")

// Port is the part of serial.Port the bridge uses.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the named port. OpenSerial is the production opener.
type Opener func(path string) (Port, error)

// portKeywords match the USB product strings of common Arduino boards and
// USB-UART adapters.
var portKeywords = []string{"ARDUINO", "USB SERIAL", "CH340", "CP210", "FTDI"}

// portVendors are the USB vendor ids of the same chips.
var portVendors = map[string]string{
	"2341": "Arduino",
	"2A03": "Arduino",
	"1A86": "CH340",
	"10C4": "CP210x",
	"0403": "FTDI",
}

// OpenSerial returns an Opener for 8N1 at the given baud rate.
func OpenSerial(baudRate int) Opener {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return func(path string) (Port, error) {
		p, err := serial.Open(path, mode)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// FindPort picks the first USB port that looks like the sorter's board.
func FindPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("bridge.FindPort: %w", err)
	}
	if name, ok := matchPort(ports); ok {
		return name, nil
	}

	log.Printf("Bridge: no board found automatically, available ports:")
	for _, p := range ports {
		log.Printf("Bridge:   - %s (%s)", p.Name, p.Product)
	}
	return "", ErrPortNotFound
}

func matchPort(ports []*enumerator.PortDetails) (string, bool) {
	for _, p := range ports {
		if p == nil {
			continue
		}
		product := strings.ToUpper(p.Product)
		for _, kw := range portKeywords {
			if strings.Contains(product, kw) {
				log.Printf("Bridge: found board at %s (%s)", p.Name, p.Product)
				return p.Name, true
			}
		}
		if chip, ok := portVendors[strings.ToUpper(p.VID)]; ok && p.IsUSB {
			log.Printf("Bridge: found %s board at %s", chip, p.Name)
			return p.Name, true
		}
	}
	return "", false
}

// OpenWithRetry tries to open path up to attempts times, pausing between
// tries, then waits settle for the board to reset.
func OpenWithRetry(ctx context.Context, open Opener, path string, attempts int, pause, settle time.Duration) (Port, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		port, err := open(path)
		if err == nil {
			log.Printf("Bridge: connected to %s", path)
			if err := sleep(ctx, settle); err != nil {
				port.Close()
				return nil, err
			}
			return port, nil
		}
		lastErr = err
		log.Printf("Bridge: failed to open %s (attempt %d/%d): %v", path, i, attempts, err)
		if i < attempts {
			if err := sleep(ctx, pause); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("bridge.OpenWithRetry: %s: %w", path, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
