package netudp

// EnableBroadcast allows this socket to send to a subnet broadcast
// address (e.g. 255.255.255.255), as the Coordinator's discovery
// beacon requires (spec.md §4.1: "DiscoveryBeacon | subnet broadcast +
// probe list"). The platform-specific SO_BROADCAST setsockopt lives in
// broadcast_unix.go / broadcast_windows.go.
func (s *Socket) EnableBroadcast() error {
	return enableBroadcast(s.conn)
}
