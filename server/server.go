package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/apex/log"
	"golang.org/x/time/rate"

	"github.com/kiebor81/mudis/cache"
)

const (
	// DefaultUnixSocketPath is the default UNIX domain socket path.
	DefaultUnixSocketPath = "/tmp/mudis.sock"
	// DefaultTCPAddress is the default TCP listen address, used when UNIX
	// sockets are unavailable or MUDIS_FORCE_TCP is set.
	DefaultTCPAddress = "127.0.0.1:9876"

	// maxLineBytes bounds a single request line to avoid an unbounded
	// buffer growth from a misbehaving or malicious client.
	maxLineBytes = 1 << 20 // 1 MiB

	defaultRatePerSecond = 200
	defaultRateBurst     = 400
)

// Config configures the IPC listener.
type Config struct {
	Network string // "unix" or "tcp"; empty selects DefaultNetwork()
	Address string // socket path or host:port; empty selects the default for Network

	// RatePerSecond and RateBurst bound each connection's request rate via
	// a per-connection golang.org/x/time/rate.Limiter, protecting the
	// shared cache from a single misbehaving client. Zero selects the
	// package defaults.
	RatePerSecond float64
	RateBurst     int
}

// DefaultNetwork picks "unix" unless MUDIS_FORCE_TCP=true is set or the
// host platform has no UNIX domain socket support.
func DefaultNetwork() (network, address string) {
	if strings.EqualFold(os.Getenv("MUDIS_FORCE_TCP"), "true") || runtime.GOOS == "windows" {
		return "tcp", DefaultTCPAddress
	}
	return "unix", DefaultUnixSocketPath
}

// Server accepts connections and dispatches line-delimited JSON requests
// against a single Cache. One goroutine handles one connection.
type Server struct {
	cache cache.Cache
	cfg   Config

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New constructs a Server bound to c. ListenAndServe must be called to
// actually start accepting connections.
func New(c cache.Cache, cfg Config) *Server {
	if cfg.Network == "" {
		cfg.Network, _ = DefaultNetwork()
	}
	if cfg.Address == "" {
		if cfg.Network == "tcp" {
			cfg.Address = DefaultTCPAddress
		} else {
			cfg.Address = DefaultUnixSocketPath
		}
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRatePerSecond
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	return &Server{cache: c, cfg: cfg}
}

// ListenAndServe binds the configured network/address and serves
// connections until ctx is canceled or Close is called. For a UNIX socket
// it removes any stale socket file left behind by a prior crashed run
// before binding.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.Network == "unix" {
		if _, err := os.Stat(s.cfg.Address); err == nil {
			_ = os.Remove(s.cfg.Address)
		}
	}

	ln, err := net.Listen(s.cfg.Network, s.cfg.Address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.WithFields(log.Fields{"network": s.cfg.Network, "address": s.cfg.Address}).Info("mudis: ipc server listening")

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				log.WithField("err", err).Warn("mudis: ipc accept error")
				return err
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting new connections. It does not close connections
// that are already open; those keep being served by their goroutines.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.RateBurst)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		var req Request
		line := scanner.Bytes()
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(writer, errResponse(err))
			return
		}

		resp := Dispatch(ctx, s.cache, req)
		if !writeResponse(writer, resp) {
			return
		}
		if fatal(resp) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.WithField("err", err).Debug("mudis: ipc connection read error")
	}
}

func writeResponse(w *bufio.Writer, resp Response) bool {
	data, err := json.Marshal(resp)
	if err != nil {
		return false
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return false
	}
	return w.Flush() == nil
}
