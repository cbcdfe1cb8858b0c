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
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// MACAddressSize is the length of an EUI-48 address in bytes
	MACAddressSize = 6
	// DefaultDelimiter separates the hex groups of a MAC address string
	DefaultDelimiter = ':'
)

// MACAddress is an EUI-48 hardware address.
type MACAddress [MACAddressSize]byte

// String formats the address lowercase with colons.
func (m MACAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		m[0], m[1], m[2], m[3], m[4], m[5])
}

// HardwareAddr returns a copy of the address as a net.HardwareAddr.
func (m MACAddress) HardwareAddr() net.HardwareAddr {
	return append(net.HardwareAddr(nil), m[:]...)
}

// IsBroadcast reports whether every byte is 0xFF.
func (m MACAddress) IsBroadcast() bool {
	return isBroadcastMAC(m[:])
}

// ParseMACAddress parses a colon-separated address such as "01:02:03:0A:0B:0F".
// Hex digits may be upper or lower case.
func ParseMACAddress(s string) (MACAddress, error) {
	return ParseMACAddressWithDelimiter(s, DefaultDelimiter)
}

// ParseMACAddressWithDelimiter parses an address whose 6 groups of 2 hex
// digits are separated by delim.
func ParseMACAddressWithDelimiter(s string, delim byte) (MACAddress, error) {
	var mac MACAddress

	groups := strings.Split(s, string(delim))
	if len(groups) != MACAddressSize {
		return mac, &AddressError{Input: s, Group: -1, Err: ErrMalformedAddress}
	}

	for i, group := range groups {
		if len(group) != 2 {
			return mac, &AddressError{Input: s, Group: i, Err: ErrInvalidOctet}
		}
		// bitSize 8 keeps the range check even if the length check is relaxed
		v, err := strconv.ParseUint(group, 16, 8)
		if err != nil {
			return mac, &AddressError{Input: s, Group: i, Err: ErrInvalidOctet}
		}
		mac[i] = byte(v)
	}

	return mac, nil
}

// isBroadcastMAC reports whether b is the 6-byte all-ones address
func isBroadcastMAC(b []byte) bool {
	if len(b) != MACAddressSize {
		return false
	}
	for i := 0; i < MACAddressSize; i++ {
		if b[i] != 0xFF {
			return false
		}
	}
	return true
}
