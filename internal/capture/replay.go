package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
)

// ReplayOptions control Replay timing.
type ReplayOptions struct {
	// Speed scales the recorded gaps between frames. 2 plays twice as
	// fast; 0 or less sends frames back to back.
	Speed float64

	// Sleep waits between frames. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Replay writes every frame from r to w as an OPC frame, keeping the
// recorded spacing. It returns the number of frames sent.
func Replay(ctx context.Context, r *Reader, w io.Writer, opts ReplayOptions) (int, error) {
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	var (
		sent int
		last time.Time
	)
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}

		if opts.Speed > 0 && !last.IsZero() {
			if gap := frame.Time.Sub(last); gap > 0 {
				if err := opts.Sleep(ctx, time.Duration(float64(gap)/opts.Speed)); err != nil {
					return sent, err
				}
			}
		}
		last = frame.Time

		out, err := opc.Encode(frame.Message())
		if err != nil {
			return sent, fmt.Errorf("frame %d: %w", sent, err)
		}
		if _, err := w.Write(out); err != nil {
			return sent, fmt.Errorf("writing frame %d: %w", sent, err)
		}
		sent++
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
