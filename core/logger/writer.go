package logger

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// sink is one buffered output receiving records at or above min.
type sink struct {
	w   *bufio.Writer
	min slog.Level
}

type line struct {
	level slog.Level
	data  []byte
}

// asyncWriter fans encoded lines out to its sinks from a single goroutine.
type asyncWriter struct {
	queue    chan line
	flushReq chan chan error
	done     chan struct{}
	sinks    []sink

	closeMu sync.RWMutex
	closed  bool

	errMu    sync.Mutex
	writeErr error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	outputs := make([]sinkSpec, 0, len(writers))
	for _, w := range writers {
		outputs = append(outputs, sinkSpec{w: w, min: slog.LevelDebug})
	}
	return newLeveledWriter(outputs, bufSize)
}

type sinkSpec struct {
	w   io.Writer
	min slog.Level
}

func newLeveledWriter(outputs []sinkSpec, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	aw := &asyncWriter{
		queue:    make(chan line, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, o := range outputs {
		if o.w == nil {
			continue
		}
		aw.sinks = append(aw.sinks, sink{w: bufio.NewWriterSize(o.w, bufSize), min: o.min})
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case l, ok := <-w.queue:
			if !ok {
				w.setErr(w.flushAll())
				return
			}
			w.setErr(w.writeAll(l))
		case ack := <-w.flushReq:
			ack <- w.flushAll()
		}
	}
}

// Write queues p for the sinks accepting level. It blocks when the queue is full.
func (w *asyncWriter) Write(level slog.Level, p []byte) error {
	if err := w.err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- line{level: level, data: append([]byte(nil), p...)}
	return nil
}

// Flush waits until everything queued so far has reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.err(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return w.err()
	}
}

// Close drains the queue and reports the first write error seen.
func (w *asyncWriter) Close() error {
	w.closeMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.closeMu.Unlock()
	<-w.done
	return w.err()
}

func (w *asyncWriter) writeAll(l line) error {
	var errs []error
	for _, s := range w.sinks {
		if l.level < s.min {
			continue
		}
		if _, err := s.w.Write(l.data); err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, s.w.Flush())
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) flushAll() error {
	var errs []error
	for _, s := range w.sinks {
		errs = append(errs, s.w.Flush())
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.writeErr
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.writeErr == nil {
		w.writeErr = err
	}
}
