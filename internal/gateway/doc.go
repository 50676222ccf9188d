// Package gateway accepts tracker TCP connections.
//
// Each accepted socket gets one goroutine and one session.Session. The
// goroutine reads chunks, feeds them to the session in order, writes the
// replies and closes the socket when the session asks for it. Socket errors
// only end their own connection.
package gateway
