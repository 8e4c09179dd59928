package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePart blocks until its context is done, optionally failing first.
type fakePart struct {
	name string
	fail error
	ran  chan struct{}
}

func newFakePart(name string, fail error) *fakePart {
	return &fakePart{name: name, fail: fail, ran: make(chan struct{})}
}

func (p *fakePart) Name() string { return p.name }

func (p *fakePart) Run(ctx context.Context) error {
	close(p.ran)
	if p.fail != nil {
		return p.fail
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestBridgeCleanStop(t *testing.T) {
	link := newFakePart("link", nil)
	mqtt := newFakePart("mqtt", nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-link.ran
		<-mqtt.ran
		cancel()
	}()
	require.NoError(t, New(link, mqtt).Run(ctx))
}

func TestBridgeFailingPartStopsTheRest(t *testing.T) {
	boom := errors.New("broker gone")
	link := newFakePart("link", nil)
	mqtt := newFakePart("mqtt", boom)

	done := make(chan error, 1)
	go func() {
		done <- New(link, mqtt).Run(context.Background())
	}()

	select {
	case err := <-done:
		var shutdown *ShutdownError
		require.ErrorAs(t, err, &shutdown)
		require.Len(t, shutdown.Parts, 1)
		require.Equal(t, "mqtt", shutdown.Parts[0].Part)
		require.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("the failing part did not take the bridge down")
	}
}

func TestPartErrorMessage(t *testing.T) {
	err := &ShutdownError{Parts: []*PartError{
		{Part: "link", Err: errors.New("wire gone")},
	}}
	require.Equal(t, "bridge shut down: link: wire gone", err.Error())
}
