// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mt

import "fmt"

// isASCII reports whether s contains only 7-bit ASCII bytes (§4.E input
// validation, §7 "Invalid address" row).
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}

// validateAddresses returns the exact nack reason string of §4.E when
// to_addr or from_addr carries non-ASCII, or "" when both are valid.
// to_addr is checked first, matching the literal ordering of the spec's
// two reason strings.
func validateAddresses(toAddr, fromAddr string) string {
	if !isASCII(toAddr) {
		return fmt.Sprintf("Invalid to_addr: %s", toAddr)
	}
	if !isASCII(fromAddr) {
		return fmt.Sprintf("Invalid from_addr: %s", fromAddr)
	}
	return ""
}
