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
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gpillon/magicpacket/internal/wol"
)

const (
	delimiterFlag = "delimiter"
	formatFlag    = "format"
)

const (
	formatHex    = "hex"
	formatRaw    = "raw"
	formatSpaced = "spaced"
)

func newPacketCommand() *cobra.Command {
	v := newConfig()

	cmd := &cobra.Command{
		Use:     "packet <mac|host>",
		Aliases: []string{"p"},
		Short:   "Print the magic packet for a MAC address",
		Example: `  wol packet 52:54:00:12:34:56
  wol packet --delimiter - 52-54-00-12-34-56
  wol packet --config hosts.yaml nas
  wol packet --format raw 52:54:00:12:34:56 | socat - UDP-DATAGRAM:255.255.255.255:9,broadcast`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if len(v.GetString(delimiterFlag)) != 1 {
				return fmt.Errorf("delimiter must be a single character, got %q", v.GetString(delimiterFlag))
			}
			switch v.GetString(formatFlag) {
			case formatHex, formatRaw, formatSpaced:
				return nil
			default:
				return fmt.Errorf("unknown format %q (want %s, %s or %s)", v.GetString(formatFlag), formatHex, formatRaw, formatSpaced)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := loadDirectory(v.GetString(configFlag))
			if err != nil {
				return err
			}

			packet, err := buildPacket(dir, args[0], v.GetString(delimiterFlag)[0])
			if err != nil {
				return fmt.Errorf("failed to build magic packet: %w", err)
			}

			setupLog.V(1).Info("Built magic packet", "mac", packet.MAC().String(), "size", len(packet))

			return writePacket(cmd.OutOrStdout(), packet, v.GetString(formatFlag))
		},
	}

	cmd.Flags().StringP(delimiterFlag, "d", string(wol.DefaultDelimiter), "Character separating the hex groups of the MAC address")
	cmd.Flags().StringP(formatFlag, "f", formatHex, "Output format: hex, raw or spaced")

	return cmd
}

// buildPacket uses the directory entry for target if there is one, otherwise
// parses target as a MAC address
func buildPacket(dir *wol.Directory, target string, delim byte) (wol.MagicPacket, error) {
	if mac, found := dir.Resolve(target); found {
		return wol.NewMagicPacket(mac), nil
	}
	return wol.CreateMagicPacketWithDelimiter(target, delim)
}

// writePacket renders packet in the requested format
func writePacket(w io.Writer, packet wol.MagicPacket, format string) error {
	switch format {
	case formatRaw:
		_, err := w.Write(packet.Bytes())
		return err
	case formatSpaced:
		for offset := 0; offset < wol.MagicPacketSize; offset += wol.MACAddressSize {
			if _, err := fmt.Fprintf(w, "% x\n", packet[offset:offset+wol.MACAddressSize]); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := fmt.Fprintln(w, hex.EncodeToString(packet[:]))
		return err
	}
}
