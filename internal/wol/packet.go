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

const (
	// DefaultWOLPort is the standard Wake-on-LAN UDP port
	DefaultWOLPort = 9
	// AlternateWOLPort is the echo port some senders use instead of 9
	AlternateWOLPort = 7
	// SyncStreamSize is the number of 0xFF bytes that open a magic packet
	SyncStreamSize = 6
	// MACRepetitions is how many times the target MAC follows the sync stream
	MACRepetitions = 16
	// MagicPacketSize is the size of a WOL magic packet (6 + 6*16 = 102 bytes)
	MagicPacketSize = SyncStreamSize + MACRepetitions*MACAddressSize
)

// MagicPacket is the 102-byte Wake-on-LAN payload for a single MAC address.
type MagicPacket [MagicPacketSize]byte

// CreateMagicPacket parses a colon-separated MAC address and builds its
// magic packet.
func CreateMagicPacket(mac string) (MagicPacket, error) {
	return CreateMagicPacketWithDelimiter(mac, DefaultDelimiter)
}

// CreateMagicPacketWithDelimiter is CreateMagicPacket for addresses whose
// groups are separated by delim instead of a colon.
func CreateMagicPacketWithDelimiter(mac string, delim byte) (MagicPacket, error) {
	addr, err := ParseMACAddressWithDelimiter(mac, delim)
	if err != nil {
		return MagicPacket{}, err
	}
	return NewMagicPacket(addr), nil
}

// NewMagicPacket builds the magic packet for mac:
// - 6 bytes of 0xFF
// - 16 repetitions of the target MAC address (6 bytes each)
func NewMagicPacket(mac MACAddress) MagicPacket {
	var packet MagicPacket

	for i := 0; i < SyncStreamSize; i++ {
		packet[i] = 0xFF
	}
	for i := 0; i < MACRepetitions; i++ {
		offset := SyncStreamSize + i*MACAddressSize
		copy(packet[offset:offset+MACAddressSize], mac[:])
	}

	return packet
}

// Bytes returns a copy of the packet as a slice, ready to be written to a socket.
func (p MagicPacket) Bytes() []byte {
	return append([]byte(nil), p[:]...)
}

// MAC returns the target address carried by the packet.
func (p MagicPacket) MAC() MACAddress {
	var mac MACAddress
	copy(mac[:], p[SyncStreamSize:SyncStreamSize+MACAddressSize])
	return mac
}

// ParseMagicPacket validates and extracts the MAC address from a WOL magic packet.
// Bytes past MagicPacketSize (SecureOn password, padding) are ignored.
func ParseMagicPacket(packet []byte) (MACAddress, bool) {
	var mac MACAddress

	if len(packet) < MagicPacketSize {
		return mac, false
	}

	if !isBroadcastMAC(packet[:SyncStreamSize]) {
		return mac, false
	}

	copy(mac[:], packet[SyncStreamSize:SyncStreamSize+MACAddressSize])

	// Verify that the MAC is repeated 16 times
	for i := 1; i < MACRepetitions; i++ {
		offset := SyncStreamSize + i*MACAddressSize
		for j := 0; j < MACAddressSize; j++ {
			if packet[offset+j] != mac[j] {
				return MACAddress{}, false
			}
		}
	}

	return mac, true
}
