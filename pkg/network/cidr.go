package network

import (
	"fmt"
	"net"
)

// cidrOverlap reports whether two CIDR ranges share any addresses. Two
// ranges overlap exactly when one's base address is contained in the other.
func cidrOverlap(a, b string) (bool, error) {
	_, anet, err := net.ParseCIDR(a)
	if err != nil {
		return false, fmt.Errorf("parsing CIDR %q: %w", a, err)
	}
	_, bnet, err := net.ParseCIDR(b)
	if err != nil {
		return false, fmt.Errorf("parsing CIDR %q: %w", b, err)
	}
	return anet.Contains(bnet.IP) || bnet.Contains(anet.IP), nil
}
