package netutil

import (
	"net"
	"strings"
)

// cgnatBlock is 100.64.0.0/10, used by carrier NATs, Tailscale and WARP.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay reports whether an active interface looks like a VPN or
// CGNAT link, where direct peer-to-peer paths usually fail.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			addrs = nil
		}
		if tunnelLike(iface.Name, addrs) {
			return true
		}
	}
	return false
}

func tunnelLike(name string, addrs []net.Addr) bool {
	lower := strings.ToLower(name)
	for _, n := range tunnelNames {
		if strings.Contains(lower, n) {
			return true
		}
	}

	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && cgnatBlock.Contains(ip) {
			return true
		}
	}
	return false
}
