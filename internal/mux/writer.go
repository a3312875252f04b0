package mux

import (
	"fmt"
	"io"
	"log/slog"
)

// stickyWriter wraps an io.Writer and stops writing after the first error
// so a half-written cluster is never followed by more data.
type stickyWriter struct {
	writer io.Writer
	logger *slog.Logger
	err    error
}

func (sw *stickyWriter) Write(p []byte) (n int, err error) {
	if sw.err != nil {
		return 0, sw.err
	}

	n, err = sw.writer.Write(p)
	if err != nil {
		sw.logger.Warn("Write error detected, muxer output is closed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"data_size", len(p),
			"bytes_written", n)
		sw.err = err
	}
	return n, err
}

func (sw *stickyWriter) Close() error {
	if sw.err == nil {
		sw.err = io.ErrClosedPipe
	}
	return nil
}
