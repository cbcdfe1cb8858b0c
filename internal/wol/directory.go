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
	"sort"
	"strings"
	"sync"
)

// Directory maps host names to MAC addresses and back
type Directory struct {
	mu     sync.RWMutex
	byName map[string]MACAddress // host name (lowercase) -> MAC
	byMAC  map[MACAddress]string
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		byName: make(map[string]MACAddress),
		byMAC:  make(map[MACAddress]string),
	}
}

// Load replaces the directory content with hosts (name -> colon-separated MAC).
// Nothing is replaced if any entry is invalid.
func (d *Directory) Load(hosts map[string]string) error {
	byName := make(map[string]MACAddress, len(hosts))
	byMAC := make(map[MACAddress]string, len(hosts))

	// Sorted so that a MAC listed under two names always resolves to the same one
	names := make([]string, 0, len(hosts))
	for name := range hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := normalizeHostName(name)
		if key == "" {
			return fmt.Errorf("empty host name in directory")
		}
		if _, exists := byName[key]; exists {
			return fmt.Errorf("host %q: duplicate host name %q", name, key)
		}
		mac, err := ParseMACAddress(strings.TrimSpace(hosts[name]))
		if err != nil {
			return fmt.Errorf("host %q: %w", name, err)
		}
		byName[key] = mac
		if _, exists := byMAC[mac]; !exists {
			byMAC[mac] = key
		}
	}

	d.mu.Lock()
	d.byName = byName
	d.byMAC = byMAC
	d.mu.Unlock()

	return nil
}

// Resolve returns the MAC address registered for name
func (d *Directory) Resolve(name string) (MACAddress, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	mac, found := d.byName[normalizeHostName(name)]
	return mac, found
}

// Lookup returns the host name registered for mac
func (d *Directory) Lookup(mac MACAddress) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	name, found := d.byMAC[mac]
	return name, found
}

// Len returns the number of host names in the directory
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byName)
}

// normalizeHostName converts a host name to lowercase without surrounding spaces
func normalizeHostName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
