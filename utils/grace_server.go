package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 60 * time.Second
	shutdownTimeout     = 30 * time.Second
	// inheritEnv marks a child started by a graceful restart; its listener is fd 3.
	inheritEnv  = "DEPTCMS_INHERIT_LISTENER"
	inheritedFD = 3
)

// Server is an http.Server that drains connections on SIGTERM or SIGINT and
// hands its listening socket to a fresh process on SIGUSR2.
type Server struct {
	*http.Server

	listener  net.Listener
	inherited bool
	done      chan struct{}
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: readTimeout / 4,
			WriteTimeout:      writeTimeout,
		},
		inherited: os.Getenv(inheritEnv) == "1",
		done:      make(chan struct{}),
	}
}

// ListenAndServe serves until a shutdown signal has been handled completely.
func (s *Server) ListenAndServe() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.listener = ln

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR2)
	go s.watch(sig)

	err = s.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		signal.Stop(sig)
		return err
	}
	<-s.done
	return nil
}

func (s *Server) listen() (net.Listener, error) {
	if s.inherited {
		ln, err := net.FileListener(os.NewFile(inheritedFD, "listener"))
		if err != nil {
			return nil, fmt.Errorf("inherit listener: %w", err)
		}
		Sugar.Infow("serving on inherited listener", "addr", ln.Addr().String())
		return ln, nil
	}
	addr := s.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func (s *Server) watch(sig chan os.Signal) {
	defer signal.Stop(sig)
	for v := range sig {
		if v == syscall.SIGUSR2 {
			pid, err := s.handOver()
			if err != nil {
				Sugar.Errorw("graceful restart failed, still serving", "error", err)
				continue
			}
			Sugar.Infow("graceful restart: new process started", "pid", pid)
		} else {
			Sugar.Infow("shutting down HTTP server", "signal", v.String())
		}
		s.shutdown()
		return
	}
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		Sugar.Errorw("HTTP server shutdown failed", "error", err)
	} else {
		Sugar.Info("HTTP server shut down")
	}
	close(s.done)
}

// handOver starts a copy of this binary that serves on the same socket.
func (s *Server) handOver() (int, error) {
	tcp, ok := s.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener %T cannot be inherited", s.listener)
	}
	f, err := tcp.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}
	defer f.Close()

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = append(os.Environ(), inheritEnv+"=1")
	// ExtraFiles[0] becomes fd 3 in the child.
	cmd.ExtraFiles = []*os.File{f}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start child: %w", err)
	}
	return cmd.Process.Pid, nil
}

// GraceServer serves handler on addr with graceful shutdown and restart.
func GraceServer(addr string, handler http.Handler) error {
	return NewServer(addr, handler, defaultReadTimeout, defaultWriteTimeout).ListenAndServe()
}
