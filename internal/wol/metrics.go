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
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	// TransportUDP labels packets received on a UDP socket
	TransportUDP = "udp"
	// TransportEthernet labels packets received as raw EtherType 0x0842 frames
	TransportEthernet = "ethernet"
)

var (
	// PacketsReceivedTotal counts every datagram or frame read, valid or not
	PacketsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wol_packets_received_total",
			Help: "Number of packets read by the Wake-on-LAN listeners",
		},
		[]string{"transport"},
	)

	// MagicPacketsTotal counts packets that decoded as a valid magic packet
	MagicPacketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wol_magic_packets_total",
			Help: "Number of valid Wake-on-LAN magic packets received",
		},
		[]string{"transport"},
	)

	// DuplicatePacketsTotal counts magic packets dropped by deduplication
	DuplicatePacketsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wol_duplicate_packets_total",
			Help: "Number of magic packets dropped as duplicates",
		},
	)

	// ErrorsTotal counts the number of errors during WOL handling
	ErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wol_errors_total",
			Help: "Number of errors during WOL handling",
		},
	)
)

func init() {
	// Register metrics with controller-runtime's registry
	metrics.Registry.MustRegister(
		PacketsReceivedTotal,
		MagicPacketsTotal,
		DuplicatePacketsTotal,
		ErrorsTotal,
	)
}
