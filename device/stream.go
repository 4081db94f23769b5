// MODUL: stream
// ZWECK: Geordnete asynchrone Ausfuehrung von Kernels auf einem Worker
// INPUT: Kernel-Funktionen in Reihenfolge der Ausgabe
// OUTPUT: Fehler beim naechsten Synchronisationspunkt
// NEBENEFFEKTE: Startet eine Goroutine pro Stream
// ABHAENGIGKEITEN: sync (stdlib), log/slog
// HINWEISE: Der erste Fehler bleibt haengen bis ClearError aufgerufen wird.
//           Ein nil-Stream fuehrt Kernels synchron aus.

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrUnknownBackend     = errors.New("device: unknown backend")
	ErrBackendUnavailable = errors.New("device: backend not available")
	ErrStreamClosed       = errors.New("device: stream closed")
)

// KernelError beschreibt den Fehler eines einzelnen Kernels.
type KernelError struct {
	Kernel string
	Err    error
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("kernel %s: %v", e.Kernel, e.Err)
}

func (e *KernelError) Unwrap() error {
	return e.Err
}

type task struct {
	name string
	fn   func() error
}

// Stream fuehrt Kernels in Ausgabereihenfolge auf einer eigenen Goroutine aus.
// Der Host blockiert nur in Synchronize.
type Stream struct {
	name    string
	queue   chan task
	done    chan struct{}
	pending sync.WaitGroup

	mu     sync.Mutex
	err    error
	closed bool
}

// NewStream startet einen neuen Stream.
func NewStream(name string) *Stream {
	s := &Stream{
		name:  name,
		queue: make(chan task, 64),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Stream) run() {
	defer close(s.done)
	for t := range s.queue {
		if s.Err() == nil {
			if err := execute(t); err != nil {
				slog.Debug("kernel failed", "stream", s.name, "kernel", t.name, "error", err)
				s.setErr(err)
			}
		}
		s.pending.Done()
	}
}

// execute fuehrt einen Kernel aus und faengt Panics ab.
func execute(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &KernelError{Kernel: t.name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := t.fn(); err != nil {
		return &KernelError{Kernel: t.name, Err: err}
	}
	return nil
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Name gibt den Namen des Streams zurueck.
func (s *Stream) Name() string {
	if s == nil {
		return "inline"
	}
	return s.name
}

// Launch reiht einen Kernel ein. Bei nil-Stream wird fn sofort ausgefuehrt.
// Liegt bereits ein Fehler vor, wird fn verworfen und der Fehler zurueckgegeben.
func (s *Stream) Launch(name string, fn func() error) error {
	if s == nil {
		return execute(task{name, fn})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.pending.Add(1)
	s.mu.Unlock()

	s.queue <- task{name, fn}
	return nil
}

// Synchronize wartet bis alle eingereihten Kernels beendet sind.
func (s *Stream) Synchronize() error {
	if s == nil {
		return nil
	}
	s.pending.Wait()
	return s.Err()
}

// Err gibt den haengenden Fehler zurueck ohne zu warten.
func (s *Stream) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ClearError setzt den haengenden Fehler zurueck.
func (s *Stream) ClearError() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
}

// Close wartet auf ausstehende Kernels und beendet den Worker.
func (s *Stream) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.Err()
	}
	s.closed = true
	s.mu.Unlock()

	s.pending.Wait()
	close(s.queue)
	<-s.done
	return s.Err()
}
