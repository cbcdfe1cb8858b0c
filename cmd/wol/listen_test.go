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
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	"github.com/gpillon/magicpacket/internal/wol"
)

var _ = Describe("listen command", func() {
	DescribeTable("parsePorts",
		func(input string, want []int, wantErr bool) {
			ports, err := parsePorts(input)
			if wantErr {
				Expect(err).To(HaveOccurred())
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(ports).To(Equal(want))
		},
		Entry("single port", "9", []int{9}, false),
		Entry("several ports with spaces", "9, 7", []int{9, 7}, false),
		Entry("empty defaults to 9", "", []int{9}, false),
		Entry("only commas defaults to 9", ",,", []int{9}, false),
		Entry("not a number", "nine", nil, true),
		Entry("zero", "0", nil, true),
		Entry("out of range", "70000", nil, true),
	)

	It("rejects a non-IPv4 bind address", func() {
		_, _, err := runCommand("listen", "--bind-address", "::1")
		Expect(err).To(MatchError(ContainSubstring("not an IPv4 address")))
	})

	It("rejects invalid ports", func() {
		_, stderr, err := runCommand("listen", "--ports", "9,abc")
		Expect(err).To(MatchError(ContainSubstring("invalid port")))
		// main logs the error, cobra stays silent
		Expect(stderr.String()).NotTo(ContainSubstring("Error: "))
	})

	DescribeTable("parseInterfaces",
		func(input string, want []string) {
			Expect(parseInterfaces(input)).To(Equal(want))
		},
		Entry("empty", "", nil),
		Entry("single", "eth0", []string{"eth0"}),
		Entry("trims and drops empty names", " eth0, ,br-lan,", []string{"eth0", "br-lan"}),
	)

	It("splits WOL_INTERFACES on commas", func() {
		Expect(os.Setenv("WOL_INTERFACES", "eth0,eth1")).To(Succeed())
		DeferCleanup(os.Unsetenv, "WOL_INTERFACES")

		v := newConfig()
		Expect(v.BindPFlags(newListenCommand().Flags())).To(Succeed())
		Expect(parseInterfaces(v.GetString(interfacesFlag))).To(Equal([]string{"eth0", "eth1"}))
	})

	It("prints the magic packets it receives until cancelled", func() {
		pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		port := strconv.Itoa(pc.LocalAddr().(*net.UDPAddr).Port)
		Expect(pc.Close()).To(Succeed())

		stdout, stderr := gbytes.NewBuffer(), gbytes.NewBuffer()
		cmd := newRootCommand()
		cmd.SetOut(stdout)
		cmd.SetErr(stderr)
		cmd.SetArgs([]string{"listen",
			"--bind-address", "127.0.0.1",
			"--ports", port,
			"--metrics-bind-address", "0"})

		ctx, cancel := context.WithCancel(context.Background())
		DeferCleanup(cancel)
		done := make(chan error, 1)
		go func() {
			done <- cmd.ExecuteContext(ctx)
		}()

		conn, err := net.Dial("udp4", net.JoinHostPort("127.0.0.1", port))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(conn.Close)

		packet, err := wol.CreateMagicPacket("52:54:00:12:34:56")
		Expect(err).NotTo(HaveOccurred())

		// Resend until the listener is bound
		Eventually(func() *gbytes.Buffer {
			_, _ = conn.Write(packet.Bytes())
			return stdout
		}, "5s", "50ms").Should(gbytes.Say(`52:54:00:12:34:56 udp 127\.0\.0\.1:\d+\n`))

		cancel()
		Eventually(done, "5s").Should(Receive(BeNil()))
	})

	Describe("print handler", func() {
		It("writes one line per UDP packet", func() {
			var out bytes.Buffer
			handler := newPrintHandler(&out, wol.NewDirectory())

			handler(context.Background(), wol.PacketEvent{
				MAC:       wol.MACAddress{0x52, 0x54, 0x00, 0x12, 0x34, 0x56},
				Transport: wol.TransportUDP,
				Source:    "192.168.1.10:40000",
				Port:      9,
			})
			Expect(out.String()).To(Equal("52:54:00:12:34:56 udp 192.168.1.10:40000\n"))
		})

		It("appends the interface for Ethernet packets", func() {
			var out bytes.Buffer
			handler := newPrintHandler(&out, wol.NewDirectory())

			handler(context.Background(), wol.PacketEvent{
				MAC:       wol.MACAddress{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
				Transport: wol.TransportEthernet,
				Source:    "02:00:00:00:00:01",
				Interface: "eth0",
			})
			Expect(out.String()).To(Equal("aa:bb:cc:dd:ee:ff ethernet 02:00:00:00:00:01%eth0\n"))
		})

		It("names hosts known to the directory", func() {
			dir := wol.NewDirectory()
			Expect(dir.Load(map[string]string{"nas": "52:54:00:12:34:56"})).To(Succeed())

			var out bytes.Buffer
			handler := newPrintHandler(&out, dir)

			handler(context.Background(), wol.PacketEvent{
				MAC:       wol.MACAddress{0x52, 0x54, 0x00, 0x12, 0x34, 0x56},
				Transport: wol.TransportUDP,
				Source:    "192.168.1.10:40000",
			})
			Expect(out.String()).To(Equal("52:54:00:12:34:56 udp 192.168.1.10:40000 (nas)\n"))
		})
	})

	Describe("status server", func() {
		var ready bool
		var mux *http.ServeMux

		BeforeEach(func() {
			ready = false
			mux = newStatusMux(func() bool { return ready }, logr.Discard())
		})

		get := func(path string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			return rec
		}

		It("always reports healthy", func() {
			rec := get("/healthz")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("ok"))
		})

		It("reports ready only once the listener is bound", func() {
			Expect(get("/readyz").Code).To(Equal(http.StatusServiceUnavailable))

			ready = true
			rec := get("/readyz")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("ready"))
		})

		It("exposes the WOL metrics", func() {
			rec := get("/metrics")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("wol_errors_total"))
			Expect(rec.Body.String()).To(ContainSubstring("wol_duplicate_packets_total"))
		})
	})
})
