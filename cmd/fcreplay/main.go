// fcreplay sends a recorded capture file to an OPC server over TCP.
//
// Usage:
//
//	fcreplay [-addr host:port] [-speed 1] [-loop] capture.cbor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-fcserver/internal/capture"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/logging"
)

const dialTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("fcreplay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "127.0.0.1:7890", "OPC server address")
	speed := fs.Float64("speed", 1, "playback speed; 0 sends frames back to back")
	loop := fs.Bool("loop", false, "repeat until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one capture file is required")
	}
	path := fs.Arg(0)

	log := logging.Default()

	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, err := d.DialContext(dialCtx, "tcp", *addr)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", *addr, err)
	}
	defer conn.Close()

	for {
		sent, err := replayFile(ctx, path, conn, *speed)
		if err != nil {
			return err
		}
		log.Info("replay finished", "path", path, "frames", sent, "addr", *addr)
		if !*loop || sent == 0 {
			return nil
		}
	}
}

func replayFile(ctx context.Context, path string, w io.Writer, speed float64) (int, error) {
	r, err := capture.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	sent, err := capture.Replay(ctx, r, w, capture.ReplayOptions{Speed: speed})
	if err != nil {
		return sent, fmt.Errorf("replaying %s: %w", path, err)
	}
	return sent, nil
}
