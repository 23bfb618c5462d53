package agent

import (
	"fmt"
	"net"
	"testing"
)

func TestFindAvailablePortEphemeral(t *testing.T) {
	port, err := FindAvailablePort(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port == 0 {
		t.Error("expected a concrete port, got 0")
	}

	// The returned port should be free at return time
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("expected returned port %d to be free: %v", port, err)
	}
	_ = ln.Close()
}

func TestFindAvailablePortSkipsBusyPort(t *testing.T) {
	// Occupy a port, then ask for it
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind probe listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	busy := ln.Addr().(*net.TCPAddr).Port

	port, err := FindAvailablePort(busy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port < busy {
		t.Errorf("expected port >= %d, got %d", busy, port)
	}
	if port == busy {
		t.Errorf("expected busy port %d to be skipped", busy)
	}
}

func TestFindAvailablePortReturnsStartPortWhenFree(t *testing.T) {
	// Find a free port, release it, then request it explicitly
	probe, err := FindAvailablePort(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	port, err := FindAvailablePort(probe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port != probe {
		// Another process may have grabbed it in between; only fail when
		// the result went backwards.
		if port < probe {
			t.Errorf("expected port >= %d, got %d", probe, port)
		}
	}
}
