// Package proxy implements the CDP reverse proxy: a stable loopback TCP
// port in front of a movable backend. The proxy is a plain byte splice —
// it never parses CDP frames or WebSocket framing, which is what lets the
// same code front any remote-debugging protocol with the same transport
// shape.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"browserpilot/internal/logging"
)

// LaunchFunc produces a backend port that will accept CDP connections.
// Invoked at most once at a time (single-flight); concurrent initial
// connections all wait on the same invocation.
type LaunchFunc func(ctx context.Context) (int, error)

var (
	// ErrNotListening is returned by operations that need a bound listener.
	ErrNotListening = errors.New("proxy: not listening")

	errNoBackend = errors.New("proxy: no backend and no lazy-launch callback")
)

const backendDialTimeout = 10 * time.Second

// launchCell is the shared single-flight state. The first connection that
// finds no backend creates it; everyone else waits on done. port and err
// are written before done is closed.
type launchCell struct {
	done chan struct{}
	port int
	err  error
}

// Proxy is the stable-port TCP reverse proxy.
type Proxy struct {
	mu       sync.Mutex
	ln       net.Listener
	port     int
	backend  int // 0 = none
	launch   LaunchFunc
	inflight *launchCell
	conns    map[net.Conn]struct{}
	closed   bool
	closedCh chan struct{}
}

// New returns an unstarted proxy.
func New() *Proxy {
	return &Proxy{
		conns:    make(map[net.Conn]struct{}),
		closedCh: make(chan struct{}),
	}
}

// Listen binds a loopback listener on port (0 = OS-assigned) and starts
// accepting. Returns the bound port, which is stable until Close.
func (p *Proxy) Listen(port int) (int, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return 0, fmt.Errorf("proxy: bind port %d: %w", port, err)
	}

	p.mu.Lock()
	p.ln = ln
	p.port = ln.Addr().(*net.TCPAddr).Port
	p.mu.Unlock()

	go p.acceptLoop(ln)
	logging.Infof("proxy: listening on 127.0.0.1:%d", p.Port())
	return p.Port(), nil
}

// Port returns the listener's bound port (0 before Listen).
func (p *Proxy) Port() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port
}

// OnLazyLaunch registers the launch callback. Replacement is allowed
// before the first connection arrives.
func (p *Proxy) OnLazyLaunch(cb LaunchFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.launch = cb
}

// SetBackend sets the forwarding target. Idempotent. Connections already
// piped keep their old target; only new connections see the change.
func (p *Proxy) SetBackend(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backend = port
}

// Backend returns the current backend port, 0 if none.
func (p *Proxy) Backend() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend
}

// ConnCount returns the number of currently tracked sockets (two per
// spliced pair).
func (p *Proxy) ConnCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// ClearBackend removes the forwarding target and tears down every open
// pair: a cleared backend must leave no connection pointed at it.
func (p *Proxy) ClearBackend() {
	p.mu.Lock()
	p.backend = 0
	p.mu.Unlock()
	p.CloseConnections()
}

// CloseConnections destroys every currently open client/backend pair.
// Subsequent incoming connections are handled normally.
func (p *Proxy) CloseConnections() {
	p.mu.Lock()
	conns := make([]net.Conn, 0, len(p.conns))
	for c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Close shuts the listener and every open pair. No further accepts
// succeed after Close returns.
func (p *Proxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	ln := p.ln
	close(p.closedCh)
	p.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	p.CloseConnections()
	return err
}

func (p *Proxy) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return // listener closed
		}
		go p.handleConn(conn)
	}
}

// handleConn runs the per-connection protocol: join the open set, resolve
// a backend (lazy-launching if needed), dial it, and splice bytes until
// either side goes away.
func (p *Proxy) handleConn(client net.Conn) {
	p.track(client)
	defer p.untrack(client)

	backend, err := p.awaitBackend()
	if err != nil {
		logging.Debugf("proxy: dropping client %s: %v", client.RemoteAddr(), err)
		_ = client.Close()
		return
	}

	upstream, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", backend), backendDialTimeout)
	if err != nil {
		logging.Warnf("proxy: backend connect 127.0.0.1:%d: %v", backend, err)
		_ = client.Close()
		return
	}
	p.track(upstream)
	defer p.untrack(upstream)

	pipe(client, upstream)
}

// awaitBackend returns the backend port, invoking the single-flight lazy
// launch when none is set.
func (p *Proxy) awaitBackend() (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrNotListening
	}
	if p.backend != 0 {
		port := p.backend
		p.mu.Unlock()
		return port, nil
	}
	if p.launch == nil {
		p.mu.Unlock()
		return 0, errNoBackend
	}

	cell := p.inflight
	if cell == nil {
		cell = &launchCell{done: make(chan struct{})}
		p.inflight = cell
		launch := p.launch
		go func() {
			port, err := launch(context.Background())
			p.mu.Lock()
			if err == nil && !p.closed {
				p.backend = port
			}
			p.inflight = nil
			p.mu.Unlock()
			cell.port, cell.err = port, err
			close(cell.done)
		}()
	}
	p.mu.Unlock()

	select {
	case <-cell.done:
		return cell.port, cell.err
	case <-p.closedCh:
		return 0, ErrNotListening
	}
}

func (p *Proxy) track(c net.Conn) {
	p.mu.Lock()
	p.conns[c] = struct{}{}
	p.mu.Unlock()
}

func (p *Proxy) untrack(c net.Conn) {
	p.mu.Lock()
	delete(p.conns, c)
	p.mu.Unlock()
}

// pipe splices bytes in both directions until either side closes or
// errors, then destroys both sockets. Each direction runs independently
// so a slow backend cannot starve a slow client.
func pipe(a, b net.Conn) {
	var once sync.Once
	closeBoth := func() {
		_ = a.Close()
		_ = b.Close()
	}

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(b, a)
		once.Do(closeBoth)
		close(done)
	}()
	_, _ = io.Copy(a, b)
	once.Do(closeBoth)
	<-done
}
