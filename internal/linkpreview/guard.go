package linkpreview

import (
	"net"
	"net/netip"
	"strings"
	"syscall"
)

// blockedAddr reports whether ip is loopback, private, link-local or
// unspecified.
func blockedAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

func blockedHostname(host string) bool {
	h := strings.ToLower(strings.TrimSuffix(host, "."))
	return h == "localhost" || strings.HasSuffix(h, ".localhost") || strings.HasSuffix(h, ".local")
}

// dialControl runs after DNS resolution for every connection, redirects
// included, so a public name that resolves to a private address is refused.
func dialControl(_ string, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return ErrBlockedHost
	}
	if blockedAddr(ip) {
		return ErrBlockedHost
	}
	return nil
}
