package resource

import (
	"context"
	"io"
)

// ThrottleWriter wraps w so that writes respect the snapshot IO limit.
// Without a configured limit, w is returned unchanged.
func (c *Controller) ThrottleWriter(ctx context.Context, w io.Writer) io.Writer {
	if c == nil || c.ioLimiter == nil {
		return w
	}

	return &throttledWriter{ctx: ctx, w: w, c: c}
}

// ThrottleReader wraps r so that reads respect the snapshot IO limit.
// Without a configured limit, r is returned unchanged.
func (c *Controller) ThrottleReader(ctx context.Context, r io.Reader) io.Reader {
	if c == nil || c.ioLimiter == nil {
		return r
	}

	return &throttledReader{ctx: ctx, r: r, c: c}
}

type throttledWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

func (w *throttledWriter) Write(p []byte) (int, error) {
	written := 0

	// Chunk at the burst size: WaitN rejects requests above it.
	for len(p) > 0 {
		chunk := p
		if len(chunk) > w.c.ioBurst {
			chunk = chunk[:w.c.ioBurst]
		}

		if err := w.c.WaitIO(w.ctx, len(chunk)); err != nil {
			return written, err
		}

		n, err := w.w.Write(chunk)
		written += n

		if err != nil {
			return written, err
		}

		p = p[n:]
	}

	return written, nil
}

type throttledReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

func (r *throttledReader) Read(p []byte) (int, error) {
	if len(p) > r.c.ioBurst {
		p = p[:r.c.ioBurst]
	}

	if err := r.c.WaitIO(r.ctx, len(p)); err != nil {
		return 0, err
	}

	return r.r.Read(p)
}
