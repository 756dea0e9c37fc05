package netif

import (
	"net"
	"testing"
)

func TestSystemCheckerUnknownInterface(t *testing.T) {
	if (SystemChecker{}).Up("cellprobe-does-not-exist0") {
		t.Fatalf("unknown interface reported up")
	}
	if (SystemChecker{}).Up("") {
		t.Fatalf("empty name reported up")
	}
}

func TestSystemCheckerLoopback(t *testing.T) {
	iface, err := net.InterfaceByName("lo")
	if err != nil || iface.Flags&net.FlagUp == 0 {
		t.Skip("no loopback interface available")
	}
	addrs, err := iface.Addrs()
	if err != nil || !hasIPv4(addrs) {
		t.Skip("loopback carries no IPv4 address")
	}
	if !(SystemChecker{}).Up("lo") {
		t.Fatalf("expected loopback to be up")
	}
}

func TestHasIPv4(t *testing.T) {
	v6 := &net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)}
	v4 := &net.IPNet{IP: net.ParseIP("10.0.0.2"), Mask: net.CIDRMask(24, 32)}
	if hasIPv4([]net.Addr{v6}) {
		t.Fatalf("IPv6-only address list reported IPv4")
	}
	if !hasIPv4([]net.Addr{v6, v4}) {
		t.Fatalf("expected IPv4 to be found")
	}
	if !hasIPv4([]net.Addr{&net.IPAddr{IP: net.ParseIP("192.0.2.1")}}) {
		t.Fatalf("expected IPAddr to be recognised")
	}
}

func TestCheckerFunc(t *testing.T) {
	var c Checker = CheckerFunc(func(name string) bool { return name == "op0" })
	if !c.Up("op0") || c.Up("op1") {
		t.Fatalf("CheckerFunc did not delegate")
	}
}
