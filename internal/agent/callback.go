package agent

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"
)

const (
	// callbackPath is the route the authorization server redirects to.
	callbackPath = "/callback"

	// shutdownGrace gives the browser time to render the result page before
	// the listener socket closes.
	shutdownGrace = 500 * time.Millisecond
)

const callbackSuccessHTML = `<html><body><h1>✅ Authorization Successful!</h1><p>You can close this window and return to the terminal.</p></body></html>`

const callbackErrorHTML = `<html><body><h1>❌ Authorization Failed</h1><p>%s</p><p>You can close this window and return to the terminal.</p></body></html>`

// CallbackResult carries the query parameters delivered on a successful
// OAuth redirect.
type CallbackResult struct {
	Code  string
	State string
}

// CallbackListener is a single-use loopback HTTP listener that receives the
// OAuth authorization redirect. It resolves exactly once, with either an
// authorization code or an error, then shuts down. A new instance must be
// created for every authorization attempt.
type CallbackListener struct {
	port     int
	logger   *Logger
	server   *http.Server
	listener net.Listener
	resultCh chan CallbackResult
	errCh    chan error
	once     sync.Once
	stopOnce sync.Once
}

// NewCallbackListener creates a listener that prefers the given port.
func NewCallbackListener(port int, logger *Logger) *CallbackListener {
	return &CallbackListener{
		port:     port,
		logger:   logger,
		resultCh: make(chan CallbackResult, 1),
		errCh:    make(chan error, 1),
	}
}

// Start binds the listener and begins serving the callback route. It returns
// the redirect URL to hand to the authorization server. If the preferred
// port is already bound, one fallback to port+1 is attempted before giving
// up; this path is best-effort and logged. The listener stops when ctx is
// cancelled.
func (l *CallbackListener) Start(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", l.port))
	if err != nil && errors.Is(err, syscall.EADDRINUSE) {
		l.logger.Warning("Callback port %d already in use, falling back to %d", l.port, l.port+1)
		ln, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", l.port+1))
	}
	if err != nil {
		return "", fmt.Errorf("failed to start callback listener: %w", err)
	}

	l.listener = ln
	l.port = ln.Addr().(*net.TCPAddr).Port

	// Isolated ServeMux to avoid conflicts with the global http.DefaultServeMux
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, l.handleCallback)
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			select {
			case l.errCh <- fmt.Errorf("callback listener error: %w", err):
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		l.Stop()
	}()

	return fmt.Sprintf("http://localhost:%d%s", l.port, callbackPath), nil
}

// Wait blocks until the redirect resolves the listener or ctx is cancelled.
func (l *CallbackListener) Wait(ctx context.Context) (CallbackResult, error) {
	select {
	case result := <-l.resultCh:
		return result, nil
	case err := <-l.errCh:
		return CallbackResult{}, err
	case <-ctx.Done():
		return CallbackResult{}, ctx.Err()
	}
}

// Port returns the port the listener is bound to.
func (l *CallbackListener) Port() int {
	return l.port
}

// Stop gracefully shuts down the listener. Idempotent.
func (l *CallbackListener) Stop() {
	l.stopOnce.Do(func() {
		if l.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.server.Shutdown(ctx)
		}
		if l.listener != nil {
			_ = l.listener.Close()
		}
	})
}

func (l *CallbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	// OAuth callbacks are always GET redirects
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resolved := false
	l.once.Do(func() {
		resolved = true
		l.resolve(w, r)
	})
	if !resolved {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// resolve handles the single accepted redirect. It runs exactly once per
// listener instance.
func (l *CallbackListener) resolve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	switch {
	case query.Get("error") != "":
		authErr := &AuthorizationError{
			Code:        query.Get("error"),
			Description: query.Get("error_description"),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, callbackErrorHTML, html.EscapeString(authErr.Error()))
		l.errCh <- authErr

	case query.Get("code") != "":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(callbackSuccessHTML))
		l.resultCh <- CallbackResult{
			Code:  query.Get("code"),
			State: query.Get("state"),
		}

	default:
		http.Error(w, "Bad request", http.StatusBadRequest)
		l.errCh <- ErrNoAuthorizationCode
	}

	// Give the browser time to render the page, then shut down.
	go func() {
		time.Sleep(shutdownGrace)
		l.Stop()
	}()
}
