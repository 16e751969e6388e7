//go:build unix

package main

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type countingInterrupter struct{ n atomic.Int32 }

func (c *countingInterrupter) Interrupt() { c.n.Add(1) }

func TestInterruptOnSignalStops(t *testing.T) {
	// Keep SIGUSR1 from terminating the test binary once the handler is gone.
	guard := make(chan os.Signal, 4)
	signal.Notify(guard, syscall.SIGUSR1)
	defer signal.Stop(guard)

	rec := &countingInterrupter{}
	stop := interruptOnSignal(rec, syscall.SIGUSR1)

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	for rec.n.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Interrupt not called on signal")
		case <-time.After(10 * time.Millisecond):
		}
	}
	<-guard

	stop()
	stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	select {
	case <-guard:
	case <-time.After(5 * time.Second):
		t.Fatal("signal not delivered")
	}
	time.Sleep(50 * time.Millisecond)
	if got := rec.n.Load(); got != 1 {
		t.Errorf("Interrupt called %d times, want 1 after stop", got)
	}
}
