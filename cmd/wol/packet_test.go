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
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gpillon/magicpacket/internal/wol"
)

var _ = Describe("packet command", func() {
	const mac = "01:02:03:0A:0B:0F"

	wantHex := strings.Repeat("ff", 6) + strings.Repeat("0102030a0b0f", 16) + "\n"

	Context("with a valid MAC address", func() {
		It("prints the payload as hex by default", func() {
			stdout, _, err := runCommand("packet", mac)
			Expect(err).NotTo(HaveOccurred())
			Expect(stdout.String()).To(Equal(wantHex))
		})

		It("prints the same payload for lowercase input", func() {
			stdout, _, err := runCommand("packet", strings.ToLower(mac))
			Expect(err).NotTo(HaveOccurred())
			Expect(stdout.String()).To(Equal(wantHex))
		})

		It("writes the raw 102 bytes", func() {
			stdout, _, err := runCommand("packet", "--format", "raw", mac)
			Expect(err).NotTo(HaveOccurred())
			Expect(stdout.Bytes()).To(HaveLen(wol.MagicPacketSize))
			Expect(stdout.Bytes()[:6]).To(Equal(bytes.Repeat([]byte{0xFF}, 6)))
			Expect(stdout.Bytes()[96:]).To(Equal([]byte{0x01, 0x02, 0x03, 0x0A, 0x0B, 0x0F}))
		})

		It("prints one row per 6 bytes in spaced format", func() {
			stdout, _, err := runCommand("packet", "-f", "spaced", mac)
			Expect(err).NotTo(HaveOccurred())

			lines := strings.Split(strings.TrimSuffix(stdout.String(), "\n"), "\n")
			Expect(lines).To(HaveLen(17))
			Expect(lines[0]).To(Equal("ff ff ff ff ff ff"))
			for _, line := range lines[1:] {
				Expect(line).To(Equal("01 02 03 0a 0b 0f"))
			}
		})

		It("accepts another delimiter", func() {
			stdout, _, err := runCommand("packet", "--delimiter", "-", "01-02-03-0A-0B-0F")
			Expect(err).NotTo(HaveOccurred())
			Expect(stdout.String()).To(Equal(wantHex))
		})

		It("reads the format from the environment", func() {
			Expect(os.Setenv("WOL_FORMAT", "spaced")).To(Succeed())
			DeferCleanup(os.Unsetenv, "WOL_FORMAT")

			stdout, _, err := runCommand("packet", mac)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Count(stdout.String(), "\n")).To(Equal(17))
		})
	})

	Context("with a config file", func() {
		var configDir, configPath string

		BeforeEach(func() {
			var err error
			configDir, err = os.MkdirTemp("", "wol-config")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, configDir)

			configPath = filepath.Join(configDir, "wol.yaml")
			config := "hosts:\n  nas: \"01:02:03:0A:0B:0F\"\n"
			Expect(os.WriteFile(configPath, []byte(config), 0o600)).To(Succeed())
		})

		It("resolves a host name to its MAC", func() {
			stdout, _, err := runCommand("packet", "--config", configPath, "NAS")
			Expect(err).NotTo(HaveOccurred())
			Expect(stdout.String()).To(Equal(wantHex))
		})

		It("still accepts a MAC address", func() {
			stdout, _, err := runCommand("packet", "--config", configPath, mac)
			Expect(err).NotTo(HaveOccurred())
			Expect(stdout.String()).To(Equal(wantHex))
		})

		It("fails for an unknown host", func() {
			_, _, err := runCommand("packet", "--config", configPath, "printer")
			Expect(err).To(MatchError(wol.ErrMalformedAddress))
		})

		It("fails when the config file is missing", func() {
			_, _, err := runCommand("packet", "--config", filepath.Join(configDir, "missing.yaml"), mac)
			Expect(err).To(MatchError(ContainSubstring("failed to read config")))
		})

		It("fails when a host has an invalid MAC", func() {
			Expect(os.WriteFile(configPath, []byte("hosts:\n  nas: \"01:02\"\n"), 0o600)).To(Succeed())

			_, _, err := runCommand("packet", "--config", configPath, mac)
			Expect(err).To(MatchError(wol.ErrMalformedAddress))
		})
	})

	Context("with an invalid MAC address", func() {
		It("fails with a malformed address error for too few groups", func() {
			stdout, _, err := runCommand("packet", "01:02:03")
			Expect(err).To(MatchError(wol.ErrMalformedAddress))
			Expect(stdout.Len()).To(BeZero())
		})

		It("fails with an invalid octet error for a bad hex digit", func() {
			_, _, err := runCommand("packet", "01:02:03:04:05:ZZ")
			Expect(err).To(MatchError(wol.ErrInvalidOctet))
		})

		It("fails when the delimiter does not match", func() {
			_, _, err := runCommand("packet", "01-02-03-0A-0B-0F")
			Expect(err).To(MatchError(wol.ErrMalformedAddress))
		})
	})

	Context("with invalid flags", func() {
		It("rejects a multi-character delimiter", func() {
			_, _, err := runCommand("packet", "--delimiter", "::", mac)
			Expect(err).To(MatchError(ContainSubstring("single character")))
		})

		It("rejects an unknown format", func() {
			_, _, err := runCommand("packet", "--format", "base64", mac)
			Expect(err).To(MatchError(ContainSubstring("unknown format")))
		})

		It("requires exactly one argument", func() {
			_, _, err := runCommand("packet")
			Expect(err).To(HaveOccurred())
		})
	})
})
