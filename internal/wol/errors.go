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
	"errors"
	"fmt"
)

var (
	// ErrMalformedAddress is returned when a MAC address string does not
	// split into exactly 6 groups.
	ErrMalformedAddress = errors.New("malformed MAC address")

	// ErrInvalidOctet is returned when a group of a MAC address string is not
	// a 2-digit hexadecimal byte.
	ErrInvalidOctet = errors.New("invalid MAC address octet")
)

// AddressError records why a MAC address string was rejected.
// Use errors.Is against ErrMalformedAddress or ErrInvalidOctet to classify it.
type AddressError struct {
	Input string // the string passed by the caller
	Group int    // index of the offending group, -1 when the group count is wrong
	Err   error  // ErrMalformedAddress or ErrInvalidOctet
}

// Error returns a human-readable description of the rejected address.
func (e *AddressError) Error() string {
	if e.Group < 0 {
		return fmt.Sprintf("%v %q", e.Err, e.Input)
	}
	return fmt.Sprintf("%v %q: group %d", e.Err, e.Input, e.Group)
}

// Unwrap returns the underlying sentinel error.
func (e *AddressError) Unwrap() error {
	return e.Err
}
