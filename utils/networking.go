package utils

import (
	"fmt"
	"net"
	"net/url"
)

// OutboundIp returns the local address used to reach the host of target, a
// URL such as the router address. No packet is sent: dialing UDP only
// selects the route.
func OutboundIp(target string) (net.IP, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %v", target, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid address %q: missing host", target)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "wss" || u.Scheme == "https" {
			port = "443"
		}
	}

	conn, err := net.Dial("udp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return nil, fmt.Errorf("could not find a route to %s: %v", u.Host, err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
