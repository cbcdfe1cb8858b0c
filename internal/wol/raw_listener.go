package wol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/mdlayher/ethernet"
	"golang.org/x/sys/unix"
)

// EtherTypeWakeOnLAN marks a magic packet carried directly in an Ethernet frame
const EtherTypeWakeOnLAN ethernet.EtherType = 0x0842

// RawListenerOptions tunes the AF_PACKET socket
type RawListenerOptions struct {
	Promiscuous    bool
	AttachBPF      bool
	RecvTimeoutSec int // default 1
}

// DefaultRawListenerOptions captures all broadcast traffic and filters in kernel
func DefaultRawListenerOptions() RawListenerOptions {
	return RawListenerOptions{
		Promiscuous:    true,
		AttachBPF:      true,
		RecvTimeoutSec: 1,
	}
}

// RawListener receives Layer 2 WoL frames on a single interface.
// Requires CAP_NET_RAW.
type RawListener struct {
	interfaceName string
	fd            int
	log           logr.Logger
	handler       PacketHandler
	deduper       *Deduper

	promisc   bool
	attachBPF bool
	rcvTOsec  int

	stopOnce sync.Once
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// NewRawListener creates a raw Ethernet listener for interfaceName
func NewRawListener(interfaceName string, handler PacketHandler, deduper *Deduper, log logr.Logger, opt RawListenerOptions) *RawListener {
	if opt.RecvTimeoutSec <= 0 {
		opt.RecvTimeoutSec = 1
	}
	return &RawListener{
		interfaceName: interfaceName,
		fd:            -1,
		log:           log,
		handler:       handler,
		deduper:       deduper,
		promisc:       opt.Promiscuous,
		attachBPF:     opt.AttachBPF,
		rcvTOsec:      opt.RecvTimeoutSec,
	}
}

// Start opens and binds the raw socket and starts the receive loop
func (r *RawListener) Start(ctx context.Context) error {
	ifi, err := net.InterfaceByName(r.interfaceName)
	if err != nil {
		return fmt.Errorf("failed to get interface %s: %w", r.interfaceName, err)
	}

	r.log.Info("Starting raw Ethernet WoL listener",
		"interface", ifi.Name,
		"mac", ifi.HardwareAddr.String(),
		"mtu", ifi.MTU)

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return fmt.Errorf("failed to create raw socket: %w (requires CAP_NET_RAW)", err)
	}
	r.fd = fd

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		r.fd = -1
		return fmt.Errorf("failed to bind to interface %s: %w", ifi.Name, err)
	}

	if r.promisc {
		mreq := &unix.PacketMreq{
			Ifindex: int32(ifi.Index),
			Type:    unix.PACKET_MR_PROMISC,
		}
		if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, mreq); err != nil {
			r.log.V(1).Info("Failed to set promiscuous mode (continuing)", "error", err)
		}
	}

	if r.attachBPF {
		bpf := wakeOnLANFilter()
		fprog := unix.SockFprog{
			Len:    uint16(len(bpf)),
			Filter: &bpf[0],
		}
		if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog); err != nil {
			r.log.V(1).Info("Failed to attach BPF filter (continuing)", "error", err)
		}
	}

	tv := &unix.Timeval{Sec: int64(r.rcvTOsec), Usec: 0}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, tv); err != nil {
		r.log.V(1).Info("Failed to set SO_RCVTIMEO (continuing)", "error", err)
	}

	r.log.Info("Raw Ethernet listener started", "interface", r.interfaceName, "fd", fd)

	r.wg.Add(1)
	go r.listen(ctx)
	return nil
}

// Stop closes the socket and waits for the receive loop to exit
func (r *RawListener) Stop() {
	r.stopOnce.Do(func() {
		r.closed.Store(true)
		if r.fd >= 0 {
			// Unblock any Recvfrom
			_ = unix.Shutdown(r.fd, unix.SHUT_RD)
			if err := unix.Close(r.fd); err != nil {
				r.log.Error(err, "Failed to close raw socket")
			}
			r.fd = -1
		}
		r.wg.Wait()
		r.log.Info("Raw Ethernet listener stopped")
	})
}

func (r *RawListener) listen(ctx context.Context) {
	defer r.wg.Done()
	buffer := make([]byte, 2000) // room for VLAN tags on a 1500 MTU

	for {
		if ctx.Err() != nil || r.closed.Load() {
			return
		}

		n, _, err := unix.Recvfrom(r.fd, buffer, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
				continue
			}
			if ctx.Err() != nil || r.closed.Load() {
				return
			}
			r.log.Error(err, "Error reading raw packet")
			ErrorsTotal.Inc()
			continue
		}

		r.processFrame(ctx, buffer[:n])
	}
}

func (r *RawListener) processFrame(ctx context.Context, frame []byte) {
	PacketsReceivedTotal.WithLabelValues(TransportEthernet).Inc()

	mac, src, ok := decodeFrame(frame)
	if !ok {
		return
	}
	MagicPacketsTotal.WithLabelValues(TransportEthernet).Inc()

	deliver(ctx, r.log, r.deduper, r.handler, PacketEvent{
		MAC:       mac,
		Transport: TransportEthernet,
		Source:    src.String(),
		Interface: r.interfaceName,
		Size:      len(frame),
	})
}

// decodeFrame extracts the target MAC from a broadcast EtherType 0x0842 frame.
// 802.1Q and 802.1ad tags are handled by ethernet.Frame.
func decodeFrame(frame []byte) (MACAddress, net.HardwareAddr, bool) {
	var parsed ethernet.Frame
	if err := parsed.UnmarshalBinary(frame); err != nil {
		return MACAddress{}, nil, false
	}

	if parsed.EtherType != EtherTypeWakeOnLAN {
		return MACAddress{}, nil, false
	}
	if !isBroadcastMAC(parsed.Destination) {
		return MACAddress{}, nil, false
	}

	mac, ok := ParseMagicPacket(parsed.Payload)
	if !ok {
		return MACAddress{}, nil, false
	}
	return mac, parsed.Source, true
}

// wakeOnLANFilter is a classic BPF program accepting only EtherType 0x0842.
// decodeFrame still checks the EtherType in case the filter failed to attach.
func wakeOnLANFilter() []unix.SockFilter {
	return []unix.SockFilter{
		// ldh [12]
		{Code: 0x28, Jt: 0, Jf: 0, K: 12},
		// jeq #0x0842, accept, drop
		{Code: 0x15, Jt: 0, Jf: 1, K: uint32(EtherTypeWakeOnLAN)},
		// ret #0x40000
		{Code: 0x6, Jt: 0, Jf: 0, K: 0x00040000},
		// ret #0
		{Code: 0x6, Jt: 0, Jf: 0, K: 0x00000000},
	}
}

// htons converts uint16 from host to network byte order (big-endian)
func htons(v uint16) uint16 { return (v << 8) | (v >> 8) }

// CandidateInterfaces returns the up, broadcast-capable physical and bridge
// interfaces worth listening on, one per MAC, sorted by name.
func CandidateInterfaces(log logr.Logger) ([]net.Interface, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	return selectInterfaces(interfaces, log)
}

func selectInterfaces(interfaces []net.Interface, log logr.Logger) ([]net.Interface, error) {
	var result []net.Interface
	for _, iface := range interfaces {
		if (iface.Flags&net.FlagLoopback) != 0 || (iface.Flags&net.FlagUp) == 0 {
			continue
		}
		if (iface.Flags & net.FlagBroadcast) == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}

		name := iface.Name
		if strings.HasPrefix(name, "en") ||
			strings.HasPrefix(name, "eth") ||
			strings.HasPrefix(name, "wlp") ||
			strings.HasPrefix(name, "br-") {
			result = append(result, iface)
		}
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("no suitable interfaces found")
	}

	// Dedupe by MAC, bridges win over the NIC they enslave
	deduped := make(map[string]net.Interface)
	for _, iface := range result {
		mac := iface.HardwareAddr.String()
		existing, ok := deduped[mac]
		if !ok {
			deduped[mac] = iface
			continue
		}
		if !strings.HasPrefix(existing.Name, "br-") && strings.HasPrefix(iface.Name, "br-") {
			log.V(1).Info("Replacing physical interface with bridge (same MAC)",
				"iface", iface.Name, "mac", mac, "replaced", existing.Name)
			deduped[mac] = iface
			continue
		}
		log.V(1).Info("Skipping duplicate MAC", "iface", iface.Name, "mac", mac, "kept", existing.Name)
	}

	final := make([]net.Interface, 0, len(deduped))
	for _, iface := range deduped {
		final = append(final, iface)
	}
	sort.Slice(final, func(i, j int) bool {
		return final[i].Name < final[j].Name
	})

	return final, nil
}

func isVirtualInterface(name string) bool {
	return strings.HasPrefix(name, "veth") ||
		strings.HasPrefix(name, "br-int") ||
		strings.HasPrefix(name, "ovn-") ||
		strings.HasPrefix(name, "tap") ||
		strings.HasPrefix(name, "ovs-system") ||
		strings.Contains(name, "@if")
}
