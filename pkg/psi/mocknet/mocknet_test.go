package mocknet_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/mocknet"
)

func TestOrderedDelivery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p1, p2 := mocknet.New().Pair()
	go func() {
		for _, m := range []string{"one", "two", "three"} {
			if err := p1.Send(ctx, psi.RoleP2.ID(), []byte(m)); err != nil {
				t.Errorf("send: %v", err)
				return
			}
		}
	}()
	for _, want := range []string{"one", "two", "three"} {
		got, err := p2.Receive(ctx, psi.RoleP1.ID())
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if string(got) != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestReceiveHonorsDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, p2 := mocknet.New().Pair()
	if _, err := p2.Receive(ctx, psi.RoleP1.ID()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestRejectsSelfAndUnknownPeers(t *testing.T) {
	p1, _ := mocknet.New().Pair()
	if err := p1.Send(context.Background(), psi.RoleP1.ID(), nil); err == nil {
		t.Fatal("send to self accepted")
	}
	if _, err := p1.Receive(context.Background(), 7); err == nil {
		t.Fatal("receive from unknown peer accepted")
	}
}

func TestJobOverMocknet(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ep1, ep2 := mocknet.New().Pair()
	names := [2]string{"advertiser", "merchant"}
	j1, err := psi.NewJob2P(ep1, psi.RoleP1, names)
	if err != nil {
		t.Fatalf("job p1: %v", err)
	}
	j2, err := psi.NewJob2P(ep2, psi.RoleP2, names)
	if err != nil {
		t.Fatalf("job p2: %v", err)
	}
	if j1.PeerName() != "merchant" || j2.Name() != "merchant" {
		t.Fatalf("names: %q %q", j1.PeerName(), j2.Name())
	}

	if err := j1.Send(ctx, []byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := j2.Receive(ctx)
	if err != nil || string(got) != "hello" {
		t.Fatalf("receive: %q %v", got, err)
	}

	// Close unblocks a pending receive.
	done := make(chan error, 1)
	go func() {
		_, err := j2.Receive(ctx)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	_ = j2.Close()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("receive after close succeeded")
		}
	case <-ctx.Done():
		t.Fatal("close did not unblock receive")
	}
	if err := j2.Send(ctx, nil); !errors.Is(err, psi.ErrJobClosed) {
		t.Fatalf("expected ErrJobClosed, got %v", err)
	}
}

func TestNewJob2PValidation(t *testing.T) {
	ep1, _ := mocknet.New().Pair()
	if _, err := psi.NewJob2P(nil, psi.RoleP1, [2]string{"a", "b"}); !errors.Is(err, psi.ErrNilTransport) {
		t.Fatalf("nil transport: %v", err)
	}
	if _, err := psi.NewJob2P(ep1, psi.Role(5), [2]string{"a", "b"}); !errors.Is(err, psi.ErrBadPeers) {
		t.Fatalf("bad role: %v", err)
	}
	if _, err := psi.NewJob2P(ep1, psi.RoleP1, [2]string{"a", "a"}); !errors.Is(err, psi.ErrBadPeers) {
		t.Fatalf("duplicate names: %v", err)
	}
}
