package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/edup2p/peerlink/peerlink"
	"github.com/edup2p/peerlink/types/msgpeer"
	"github.com/edup2p/peerlink/types/sysaddr"
)

const waitFor = 3 * time.Second

func main() {
	log.SetFlags(0)

	if len(os.Args) != 3 {
		log.Fatalf("usage: %s <host> <port>", os.Args[0])
	}
	host := os.Args[1]

	port, err := strconv.ParseUint(os.Args[2], 10, 16)
	if err != nil {
		log.Fatal(err)
	}

	p := peerlink.New(peerlink.DefaultConfig())
	if err := p.Startup(1); err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := p.Shutdown(false); err != nil {
			log.Print(err)
		}
	}()

	sent := time.Now()
	if err := p.Ping(host, uint16(port)); err != nil {
		log.Fatal(err)
	}

	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		pkt, ok := p.Poll()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if pkt.Kind != msgpeer.KindUnconnectedPong {
			continue
		}

		log.Printf("local   : %v", p.GetLocalAddress(0))
		log.Printf("recv  <-  %v", pkt.Address)
		log.Printf("guid    : %v", pkt.GUID)
		log.Printf("rtt     : %v", time.Since(sent).Round(time.Microsecond))
		log.Printf("response: %q", pkt.Payload)
		return
	}

	log.Printf("no pong from %s within %v", sysaddr.JoinHostPort(host, uint16(port)), waitFor)
}
