package dblock

import (
	"net"
	"time"
)

// Serializes test packages that share one database. First listener wins;
// everyone else spins until it closes.
const lockAddr = "127.0.0.1:45433"

func Acquire() func() {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
