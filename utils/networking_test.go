package utils

import "testing"

func TestOutboundIpTowardsLoopbackRouter(t *testing.T) {
	ip, err := OutboundIp("ws://127.0.0.1:8080/ws")
	AssertNil(t, err)
	AssertTrue(t, ip.IsLoopback())

	ip, err = OutboundIp("ws://127.0.0.1/ws")
	AssertNil(t, err)
	AssertTrue(t, ip.IsLoopback())
}

func TestOutboundIpInvalidAddress(t *testing.T) {
	_, err := OutboundIp("not a url at all")
	AssertNonNil(t, err)
	_, err = OutboundIp("ws:///ws")
	AssertNonNil(t, err)
}
