package webrtc

import (
	"net"
	"strings"
)

// carrier-grade NAT range, also used by WARP and Tailscale
var cgnatBlock = mustCIDR("100.64.0.0/10")

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// tunnelNames are interface name fragments of VPN and virtual adapters.
var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// iface is the subset of an interface that matters for relay detection.
type iface struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

// behindTunnel reports whether the host is likely behind a VPN or CGNAT,
// where direct peer paths usually fail and TURN should be forced.
func behindTunnel() bool {
	ifs, err := net.Interfaces()
	if err != nil {
		return false
	}

	list := make([]iface, 0, len(ifs))
	for _, i := range ifs {
		addrs, _ := i.Addrs()
		list = append(list, iface{name: i.Name, flags: i.Flags, addrs: addrs})
	}
	return tunnelled(list)
}

func tunnelled(ifs []iface) bool {
	for _, i := range ifs {
		if i.flags&net.FlagUp == 0 || i.flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(i.name)
		for _, frag := range tunnelNames {
			if strings.Contains(name, frag) {
				return true
			}
		}

		for _, addr := range i.addrs {
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
	}
	return false
}
