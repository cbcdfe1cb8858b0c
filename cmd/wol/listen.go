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

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/gpillon/magicpacket/internal/wol"
)

const (
	portsFlag              = "ports"
	bindAddressFlag        = "bind-address"
	rawFlag                = "raw"
	interfacesFlag         = "interfaces"
	dedupeWindowFlag       = "dedupe-window"
	metricsBindAddressFlag = "metrics-bind-address"
)

func newListenCommand() *cobra.Command {
	v := newConfig()

	cmd := &cobra.Command{
		Use:     "listen",
		Aliases: []string{"l"},
		Short:   "Log the magic packets received on this host",
		Long: `listen binds the Wake-on-LAN UDP ports and, with --raw, opens an AF_PACKET
socket per interface for EtherType 0x0842 frames. Every magic packet is printed
as "<mac> <transport> <source>" on stdout, followed by the host name when
the --config file knows the MAC.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if ip := net.ParseIP(v.GetString(bindAddressFlag)); ip == nil || ip.To4() == nil {
				return fmt.Errorf("bind address %q is not an IPv4 address", v.GetString(bindAddressFlag))
			}
			_, err := parsePorts(v.GetString(portsFlag))
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := parsePorts(v.GetString(portsFlag))
			if err != nil {
				return err
			}

			// Context with signal handling for graceful shutdown
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			setupLog.Info("Starting WOL listener",
				"ports", ports,
				"raw", v.GetBool(rawFlag),
				"dedupeWindow", v.GetDuration(dedupeWindowFlag).String(),
				"config", v.GetString(configFlag),
				"version", version)

			dir, err := loadDirectory(v.GetString(configFlag))
			if err != nil {
				return err
			}

			deduper := wol.NewDeduper(v.GetDuration(dedupeWindowFlag))
			go deduper.Run(ctx, 30*time.Second)

			handler := newPrintHandler(cmd.OutOrStdout(), dir)
			log := crlog.Log.WithName("listener")

			listener := wol.NewListener(ports, handler, log,
				wol.WithBindAddress(net.ParseIP(v.GetString(bindAddressFlag))),
				wol.WithDeduper(deduper))
			if err := listener.Start(ctx); err != nil {
				setupLog.Error(err, "Failed to start UDP listener")
				return err
			}

			var rawListeners []*wol.RawListener
			if v.GetBool(rawFlag) {
				rawListeners = startRawListeners(ctx, parseInterfaces(v.GetString(interfacesFlag)), handler, deduper, log)
			}

			if addr := v.GetString(metricsBindAddressFlag); addr != "0" {
				status := newStatusServer(addr, func() bool { return len(listener.Addrs()) > 0 }, setupLog)
				go status.Run(ctx)
			}

			<-ctx.Done()
			listener.Stop()
			for _, l := range rawListeners {
				l.Stop()
			}
			listener.Wait()

			setupLog.Info("Listener stopped gracefully")
			return nil
		},
	}

	cmd.Flags().StringP(portsFlag, "p", strconv.Itoa(wol.DefaultWOLPort), "UDP ports for WOL packets (comma-separated)")
	cmd.Flags().String(bindAddressFlag, net.IPv4zero.String(), "IPv4 address the UDP sockets bind to")
	cmd.Flags().Bool(rawFlag, false, "Also listen for raw Ethernet (EtherType 0x0842) magic packets, requires CAP_NET_RAW")
	cmd.Flags().String(interfacesFlag, "", "Interfaces for --raw, comma-separated (default: every physical or bridge interface)")
	cmd.Flags().Duration(dedupeWindowFlag, wol.DefaultDedupeWindow, "Drop repeated packets for the same MAC within this window (0 disables)")
	cmd.Flags().String(metricsBindAddressFlag, ":8080", "Address serving /metrics, /healthz and /readyz (0 disables)")

	return cmd
}

// newPrintHandler writes one line per magic packet to w, followed by the
// host name when dir knows the MAC
func newPrintHandler(w io.Writer, dir *wol.Directory) wol.PacketHandler {
	var mu sync.Mutex
	return func(_ context.Context, ev wol.PacketEvent) {
		mu.Lock()
		defer mu.Unlock()

		source := ev.Source
		if ev.Interface != "" {
			source = ev.Source + "%" + ev.Interface
		}
		if name, found := dir.Lookup(ev.MAC); found {
			fmt.Fprintf(w, "%s %s %s (%s)\n", ev.MAC, ev.Transport, source, name)
			return
		}
		fmt.Fprintf(w, "%s %s %s\n", ev.MAC, ev.Transport, source)
	}
}

// startRawListeners starts one raw Ethernet listener per interface, skipping
// the ones that fail. With no names given the candidate interfaces are used.
func startRawListeners(ctx context.Context, names []string, handler wol.PacketHandler, deduper *wol.Deduper, log logr.Logger) []*wol.RawListener {
	if len(names) == 0 {
		interfaces, err := wol.CandidateInterfaces(log)
		if err != nil {
			log.Error(err, "Failed to detect network interfaces (continuing with UDP only)")
			return nil
		}
		for _, iface := range interfaces {
			names = append(names, iface.Name)
		}
	}

	var started []*wol.RawListener
	var startedNames []string
	for _, name := range names {
		l := wol.NewRawListener(name, handler, deduper, log.WithValues("iface", name), wol.DefaultRawListenerOptions())
		if err := l.Start(ctx); err != nil {
			log.Error(err, "Failed to start raw WoL listener", "iface", name)
			continue
		}
		started = append(started, l)
		startedNames = append(startedNames, name)
	}

	if len(started) == 0 {
		log.Info("No raw WoL listener started, raw WoL requires NET_RAW capability")
		return nil
	}
	log.Info("Raw Ethernet WoL listeners started", "count", len(started), "interfaces", strings.Join(startedNames, ", "))
	return started
}

// parseInterfaces splits a comma-separated interface list, dropping empty names
func parseInterfaces(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

func parsePorts(portsStr string) ([]int, error) {
	parts := strings.Split(portsStr, ",")
	ports := make([]int, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		port, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", part, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("port %d out of range (must be 1-65535)", port)
		}
		ports = append(ports, port)
	}

	if len(ports) == 0 {
		return []int{wol.DefaultWOLPort}, nil
	}

	return ports, nil
}
