package util

import "strings"

// IsIPv6 reports whether address is a literal IPv6 address. Hostnames and
// IPv4 literals never contain more than one colon.
func IsIPv6(address string) bool {
	return strings.Count(address, ":") >= 2
}
