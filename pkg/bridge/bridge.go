// Package bridge assembles a running bridge out of its parts: the
// link controller on the bus side and the host transports serving it.
// The parts run together and stop together — a failing transport must
// not leave the link controller holding the bus, and vice versa.
package bridge

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

// Part is one supervised piece of the bridge, such as the link
// controller or a host transport.
type Part interface {
	// Name identifies the part in logs and shutdown errors.
	Name() string
	// Run blocks until the part stops or ctx is done.
	Run(context.Context) error
}

// PartError reports which part of the bridge failed.
type PartError struct {
	Part string
	Err  error
}

// Error implements error.
func (e *PartError) Error() string {
	return e.Part + ": " + e.Err.Error()
}

// Unwrap exposes the part's own error.
func (e *PartError) Unwrap() error {
	return e.Err
}

// ShutdownError collects the part failures of a bridge run.
type ShutdownError struct {
	Parts []*PartError
}

// Error implements error.
func (e *ShutdownError) Error() string {
	msgs := make([]string, len(e.Parts))
	for i, pe := range e.Parts {
		msgs[i] = pe.Error()
	}
	return "bridge shut down: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual part errors.
func (e *ShutdownError) Unwrap() []error {
	errs := make([]error, len(e.Parts))
	for i, pe := range e.Parts {
		errs[i] = pe
	}
	return errs
}

// Bridge runs its parts as one unit.
type Bridge struct {
	parts []Part
}

// New assembles a bridge from its parts.
func New(parts ...Part) *Bridge {
	return &Bridge{parts: parts}
}

// Run starts every part and blocks until all have stopped. The first
// part to fail stops the rest; cancellation of ctx is a clean stop.
// It returns nil on a clean stop, or a ShutdownError naming the parts
// that failed.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []*PartError
	)
	for _, part := range b.parts {
		wg.Add(1)
		go func(part Part) {
			defer wg.Done()
			glog.V(2).Infof("%s running", part.Name())
			err := part.Run(ctx)
			glog.V(2).Infof("%s stopped", part.Name())
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			glog.Errorf("%s failed: %v", part.Name(), err)
			mu.Lock()
			failed = append(failed, &PartError{Part: part.Name(), Err: err})
			mu.Unlock()
			// one failed part takes the whole bridge down
			cancel()
		}(part)
	}
	wg.Wait()
	if len(failed) == 0 {
		return nil
	}
	return &ShutdownError{Parts: failed}
}

// RunUntilSignal runs the bridge until a part fails or the process is
// interrupted. A second interrupt forces an immediate exit.
func (b *Bridge) RunUntilSignal() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		glog.Info("stop requested")
		cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		os.Exit(1)
	}()
	return b.Run(ctx)
}
