/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package wol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
)

// PacketEvent describes a magic packet seen by a listener
type PacketEvent struct {
	MAC       MACAddress
	Transport string // TransportUDP or TransportEthernet
	Source    string // sender IP:port for UDP, sender MAC for Ethernet
	Interface string // set for Ethernet only
	Port      int    // local UDP port, 0 for Ethernet
	Size      int
}

// PacketHandler is called once per accepted magic packet
type PacketHandler func(ctx context.Context, ev PacketEvent)

// ListenerOption configures a Listener
type ListenerOption func(*Listener)

// WithBindAddress sets the IPv4 address the UDP sockets bind to (default 0.0.0.0)
func WithBindAddress(ip net.IP) ListenerOption {
	return func(l *Listener) {
		l.bindIP = ip
	}
}

// WithDeduper drops repeated packets for the same MAC
func WithDeduper(d *Deduper) ListenerOption {
	return func(l *Listener) {
		l.deduper = d
	}
}

// Listener handles incoming Wake-on-LAN packets on one or more UDP ports.
// Port 0 binds an ephemeral port.
type Listener struct {
	ports   []int
	bindIP  net.IP
	handler PacketHandler
	deduper *Deduper
	log     logr.Logger

	mu       sync.Mutex
	conns    []*net.UDPConn
	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// NewListener creates a new WOL listener
func NewListener(ports []int, handler PacketHandler, log logr.Logger, opts ...ListenerOption) *Listener {
	if len(ports) == 0 {
		ports = []int{DefaultWOLPort}
	}
	l := &Listener{
		ports:   append([]int(nil), ports...),
		bindIP:  net.IPv4zero,
		handler: handler,
		log:     log,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start binds every port and starts one read loop per socket. It returns
// once the sockets are bound; the loops run until ctx is done or Stop is called.
func (l *Listener) Start(ctx context.Context) error {
	lc := net.ListenConfig{Control: l.control}

	for _, port := range l.ports {
		address := net.JoinHostPort(l.bindIP.String(), strconv.Itoa(port))
		pc, err := lc.ListenPacket(ctx, "udp4", address)
		if err != nil {
			l.closeConns()
			return fmt.Errorf("failed to listen on UDP port %d: %w", port, err)
		}
		conn := pc.(*net.UDPConn)

		// Set read buffer size (larger for handling bursts of packets)
		if err := conn.SetReadBuffer(1024 * 64); err != nil {
			l.log.Error(err, "Failed to set read buffer size", "port", port)
		}

		l.mu.Lock()
		l.conns = append(l.conns, conn)
		l.mu.Unlock()

		l.log.Info("WOL listener started", "port", port, "actualAddress", conn.LocalAddr().String())
	}

	l.mu.Lock()
	conns := append([]*net.UDPConn(nil), l.conns...)
	l.mu.Unlock()

	for _, conn := range conns {
		l.wg.Add(1)
		go l.listen(ctx, conn)
	}

	go func() {
		select {
		case <-ctx.Done():
			l.Stop()
		case <-l.done:
		}
	}()

	return nil
}

// control sets socket options before bind
func (l *Listener) control(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		// Enable SO_REUSEADDR to allow multiple binds
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			l.log.Error(err, "Failed to enable SO_REUSEADDR", "address", address)
		}

		// Enable SO_REUSEPORT to allow multiple processes to bind
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			l.log.Error(err, "Failed to enable SO_REUSEPORT", "address", address)
		}

		// SO_BROADCAST is required to see packets sent to 255.255.255.255
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
			sockErr = fmt.Errorf("SO_BROADCAST: %w", err)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}

// listen is the read loop of a single socket
func (l *Listener) listen(ctx context.Context, conn *net.UDPConn) {
	defer l.wg.Done()

	port := conn.LocalAddr().(*net.UDPAddr).Port
	log := l.log.WithValues("port", port)
	buffer := make([]byte, 1500)

	log.V(1).Info("UDP listener loop started, waiting for packets...")

	for {
		if ctx.Err() != nil {
			return
		}

		// Read deadline lets the loop observe cancellation
		if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error(err, "Failed to set read deadline")
		}

		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error(err, "Error reading UDP packet")
			ErrorsTotal.Inc()
			continue
		}

		l.processPacket(ctx, buffer[:n], addr, port)
	}
}

// processPacket decodes a datagram and hands valid magic packets to the handler
func (l *Listener) processPacket(ctx context.Context, packet []byte, addr *net.UDPAddr, port int) {
	PacketsReceivedTotal.WithLabelValues(TransportUDP).Inc()

	mac, valid := ParseMagicPacket(packet)
	if !valid {
		l.log.V(1).Info("Invalid WOL packet received", "from", addr.String(), "size", len(packet))
		return
	}
	MagicPacketsTotal.WithLabelValues(TransportUDP).Inc()

	deliver(ctx, l.log, l.deduper, l.handler, PacketEvent{
		MAC:       mac,
		Transport: TransportUDP,
		Source:    addr.String(),
		Port:      port,
		Size:      len(packet),
	})
}

// Addrs returns the local addresses of the bound sockets
func (l *Listener) Addrs() []net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()

	addrs := make([]net.Addr, 0, len(l.conns))
	for _, conn := range l.conns {
		addrs = append(addrs, conn.LocalAddr())
	}
	return addrs
}

// Stop closes every socket. It is safe to call more than once.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.closeConns()
		l.log.Info("WOL listener stopped")
	})
}

// Wait blocks until every read loop has exited
func (l *Listener) Wait() {
	l.wg.Wait()
}

func (l *Listener) closeConns() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, conn := range l.conns {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			l.log.Error(err, "Failed to close UDP connection")
		}
	}
}

// deliver applies deduplication and calls the handler
func deliver(ctx context.Context, log logr.Logger, deduper *Deduper, handler PacketHandler, ev PacketEvent) {
	if deduper != nil && !deduper.Allow(ev.MAC) {
		DuplicatePacketsTotal.Inc()
		log.V(1).Info("Skipping duplicate magic packet", "mac", ev.MAC.String(), "transport", ev.Transport)
		return
	}

	log.Info("Valid WOL packet received",
		"mac", ev.MAC.String(),
		"transport", ev.Transport,
		"from", ev.Source)

	if handler != nil {
		handler(ctx, ev)
	}
}
