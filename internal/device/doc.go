// Package device is a tracker simulator used for load and end-to-end tests.
//
// A Client dials the gateway and performs the identity handshake. The
// returned Conn sends AVL data packets and reads the 4-byte acknowledgement,
// resending with backoff while the gateway acknowledges zero records.
package device
