package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrNoAddress is returned when no non-loopback IPv4 address is configured.
var ErrNoAddress = errors.New("no LAN address found")

// ServerHandle describes where the server is reachable once it is bound.
type ServerHandle struct {
	BoundAddress string `json:"ip"`
	BoundPort    int    `json:"port"`
}

// URL is the address other devices on the LAN should open.
func (h ServerHandle) URL() string {
	return "http://" + net.JoinHostPort(h.BoundAddress, strconv.Itoa(h.BoundPort))
}

// DiscoverAdvertisedAddress returns the first non-loopback IPv4 address of
// this host.
func DiscoverAdvertisedAddress() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("list interface addresses: %w", err)
	}
	return firstLANAddress(addrs)
}

func firstLANAddress(addrs []net.Addr) (string, error) {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", ErrNoAddress
}

// Listen binds addr and reports the resulting handle. advertiseHost overrides
// the discovered address; when neither is available the bound address is used.
func Listen(addr, advertiseHost string) (net.Listener, ServerHandle, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ServerHandle{}, err
	}

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		ln.Close()
		return nil, ServerHandle{}, fmt.Errorf("unexpected listener address %v", ln.Addr())
	}

	host := advertiseHost
	if host == "" {
		if !tcpAddr.IP.IsUnspecified() {
			host = tcpAddr.IP.String()
		} else if discovered, err := DiscoverAdvertisedAddress(); err == nil {
			host = discovered
		} else {
			host = "127.0.0.1"
		}
	}

	return ln, ServerHandle{BoundAddress: host, BoundPort: tcpAddr.Port}, nil
}
