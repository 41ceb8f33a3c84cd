// Package derive computes synthetic per-node network identities. All
// functions are pure: the same inputs always produce the same address, which
// is what makes fleet experiments reproducible across provisioning runs.
package derive

import (
	"encoding/binary"
	"fmt"
	"net"
)

// macPrefix is a vendor-neutral, locally-administered OUI prefix
// (0x02 sets the locally-administered bit).
var macPrefix = [2]byte{0x02, 0xfd}

// DeriveIP maps (cidr, index) to a host address strictly inside cidr. Host
// numbering starts at offset 10 to stay clear of gateway and infrastructure
// addresses that k3d assigns at the bottom of the range. Indices too large
// for the subnet wrap back into the usable range. The result is never the
// network or broadcast address.
func DeriveIP(cidr string, index int) (string, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", fmt.Errorf("parsing CIDR %q: %w", cidr, err)
	}
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return "", fmt.Errorf("CIDR %q is not IPv4", cidr)
	}
	ones, _ := ipnet.Mask.Size()
	if ones > 30 {
		return "", fmt.Errorf("CIDR %q has no usable host addresses", cidr)
	}

	total := uint32(1) << (32 - uint(ones))
	usable := int(total) - 2
	base := binary.BigEndian.Uint32(ip4)
	broadcast := base + total - 1

	hostIndex := index + 10
	if hostIndex < 10 {
		hostIndex = 10
	}
	if hostIndex >= usable {
		hostIndex = (index % usable) + 1
	}

	addr := base + uint32(hostIndex)
	if addr == broadcast {
		addr--
	}

	out := make(net.IP, 4)
	binary.BigEndian.PutUint32(out, addr)
	return out.String(), nil
}

// DeriveMAC maps (clusterID, index) to a locally-administered hardware
// address. The index high/low byte pair alone bijects with index in
// [1, 65535], so addresses are unique per cluster in that range. The final
// byte is (index*37) mod 256, which adds visual entropy when eyeballing
// node tables but carries no information.
func DeriveMAC(clusterID, index int) string {
	hw := net.HardwareAddr{
		macPrefix[0],
		macPrefix[1],
		byte(clusterID),
		byte((index >> 8) & 0xff),
		byte(index & 0xff),
		byte((index * 37) % 256),
	}
	return hw.String()
}
