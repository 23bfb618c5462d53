package agent

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// maxPortProbes bounds the sequential search for a free callback port.
const maxPortProbes = 100

// FindAvailablePort returns a free TCP port on the loopback interface,
// starting the search at startPort. A port that is already in use is
// skipped and the next one is probed; any other bind failure is returned
// immediately. Passing 0 resolves to an ephemeral port.
func FindAvailablePort(startPort int) (int, error) {
	for i := 0; i < maxPortProbes; i++ {
		port := startPort + i
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			if errors.Is(err, syscall.EADDRINUSE) {
				continue
			}
			return 0, fmt.Errorf("failed to probe port %d: %w", port, err)
		}
		bound := ln.Addr().(*net.TCPAddr).Port
		_ = ln.Close()
		return bound, nil
	}
	return 0, fmt.Errorf("no free port found in range %d-%d", startPort, startPort+maxPortProbes-1)
}
