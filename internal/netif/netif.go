// Package netif answers whether a network interface is usable for a probe.
package netif

import (
	"net"
)

// Checker reports whether the named interface is usable.
type Checker interface {
	Up(name string) bool
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(name string) bool

func (f CheckerFunc) Up(name string) bool { return f(name) }

// SystemChecker asks the kernel: the interface must exist, be flagged up and
// carry at least one IPv4 address.
type SystemChecker struct{}

func (SystemChecker) Up(name string) bool {
	if name == "" {
		return false
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return false
	}
	if iface.Flags&net.FlagUp == 0 {
		return false
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return false
	}
	return hasIPv4(addrs)
}

func hasIPv4(addrs []net.Addr) bool {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && ip.To4() != nil {
			return true
		}
	}
	return false
}
