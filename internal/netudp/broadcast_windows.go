//go:build windows

package netudp

import "net"

func enableBroadcast(conn *net.UDPConn) error {
	// Windows UDP sockets permit broadcast sends without SO_BROADCAST
	// in practice for the loopback/LAN use this system targets; nothing
	// to do here.
	return nil
}
