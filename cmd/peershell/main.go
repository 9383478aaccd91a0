package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/LukaGiorgadze/gonull"
	"github.com/abiosoft/ishell/v2"
	"github.com/edup2p/peerlink/peerlink"
	"github.com/edup2p/peerlink/types"
	"github.com/edup2p/peerlink/types/sysaddr"
)

var (
	programLevel = new(slog.LevelVar) // Info by default

	cfg  = peerlink.DefaultConfig()
	peer *peerlink.Peer
)

func main() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: programLevel, AddSource: true})
	slog.SetDefault(slog.New(h))
	programLevel.Set(slog.LevelDebug)

	shell := ishell.New()

	shell.SetHomeHistoryPath(".peershell_history")

	shell.Println("PeerLink Interactive Shell")

	shell.AddCmd(&ishell.Cmd{
		Name: "trace",
		Help: "set log level to trace",
		Func: func(c *ishell.Context) {
			programLevel.Set(types.LevelTrace)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "debug",
		Help: "set log level to debug",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelDebug)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "set log level to info",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelInfo)
		},
	})

	shell.AddCmd(peerCmd())
	shell.AddCmd(connCmd())
	shell.AddCmd(offlineCmd())

	shell.AddCmd(&ishell.Cmd{
		Name: "poll",
		Help: "print all pending receive queue entries",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			for {
				pkt, ok := peer.Poll()
				if !ok {
					return
				}

				c.Printf("%-36s from %s (%s) time=%d payload=%s\n",
					pkt.Kind, pkt.Address, pkt.GUID.Debug(), pkt.Time, hex.EncodeToString(pkt.Payload))
			}
		},
	})

	shell.Run()

	if peer != nil {
		if err := peer.Shutdown(true); err != nil {
			slog.Error("shutdown failed", "err", err)
		}
	}
}

func started(c *ishell.Context) bool {
	if peer == nil {
		c.Err(peerlink.ErrNotStarted)
		return false
	}
	return true
}

// argOrRead returns argument i, or asks for it.
func argOrRead(c *ishell.Context, i int, prompt string) string {
	if len(c.Args) > i {
		return c.Args[i]
	}

	c.Println(prompt)
	return c.ReadLine()
}

func parsePort(s string) (uint16, error) {
	i, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(i), nil
}

// hostPort reads a host and port from the first two arguments.
func hostPort(c *ishell.Context) (string, uint16, error) {
	host := argOrRead(c, 0, "enter host")
	port, err := parsePort(argOrRead(c, 1, "enter port"))
	return host, port, err
}

func addrArg(c *ishell.Context) (sysaddr.SystemAddress, error) {
	return sysaddr.Parse(argOrRead(c, 0, "enter address, as ip:port"))
}

// Peer commands
func peerCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "peer",
		Help: "peer lifecycle and addresses",
		Func: func(c *ishell.Context) {
			if peer == nil {
				c.Println("peer: stopped")
				return
			}

			c.Println("guid:", peer.GUID())
			for i := 0; ; i++ {
				a := peer.GetLocalAddress(i)
				if a.IsUnassigned() {
					break
				}
				c.Printf("socket %d: %s\n", i, a)
			}
			c.Println("internal:", peer.GetInternalAddress())
			c.Println("external:", peer.GetExternalAddress())
			c.Println("max incoming:", peer.GetMaximumIncomingConnections())
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "start",
		Help: "start the peer: -max [connections] -incoming [n] -host [ip] -port [port]",
		Func: func(c *ishell.Context) {
			if peer != nil {
				c.Err(peerlink.ErrAlreadyStarted)
				return
			}

			fs := flag.NewFlagSet("peer-start", flag.ContinueOnError)

			maxConns := fs.Int("max", 8, "maximum connections")
			incoming := fs.Int("incoming", 8, "maximum incoming connections")
			host := fs.String("host", "", "address to bind")
			port := fs.Uint("port", 0, "port to bind")
			notices := fs.Bool("notices", false, "broadcast remote notices")

			if err := fs.Parse(c.Args); err != nil {
				c.Err(fmt.Errorf("could not parse flags: %w", err))
				return
			}

			cfg.MaxIncomingConnections = *incoming
			cfg.BroadcastRemoteNotices = *notices

			p := peerlink.New(cfg)
			if err := p.Startup(*maxConns, peerlink.SocketDescriptor{Host: *host, Port: uint16(*port)}); err != nil {
				c.Err(err)
				return
			}

			// keep the identity across restarts
			cfg.GUID = p.GUID()
			peer = p

			c.Println("started at", peer.GetLocalAddress(0))
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop the peer, 'silent' to not notify connections",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			notify := len(c.Args) == 0 || c.Args[0] != "silent"
			if err := peer.Shutdown(notify); err != nil {
				c.Err(err)
			}
			peer = nil
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "incoming",
		Help: "set the maximum incoming connections",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			n, err := strconv.Atoi(argOrRead(c, 0, "enter maximum"))
			if err != nil {
				c.Err(err)
				return
			}

			peer.SetMaximumIncomingConnections(n)
		},
	})

	return c
}

// Connection commands
func connCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name:    "conn",
		Aliases: []string{"c"},
		Help:    "list connections",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			for _, conn := range peer.GetConnectionList() {
				c.Printf("%s %s %s rtt=%s\n", conn.Address, conn.GUID.Debug(), conn.Direction, conn.RTT)
			}
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "connect: <host> <port> -count [n] -interval [duration] -timeout [duration]",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			host, port, err := hostPort(c)
			if err != nil {
				c.Err(err)
				return
			}

			fs := flag.NewFlagSet("conn-open", flag.ContinueOnError)

			count := fs.Int("count", 0, "connection requests to send")
			interval := fs.Duration("interval", 0, "time between requests")
			timeout := fs.Duration("timeout", 0, "attempt deadline")

			if len(c.Args) > 2 {
				if err := fs.Parse(c.Args[2:]); err != nil {
					c.Err(fmt.Errorf("could not parse flags: %w", err))
					return
				}
			}

			var opts peerlink.ConnectOptions
			if *count > 0 {
				opts.SendConnectionAttemptCount = gonull.NewNullable(*count)
			}
			if *interval > 0 {
				opts.TimeBetweenSendConnectionAttempts = gonull.NewNullable(*interval)
			}
			if *timeout > 0 {
				opts.Timeout = gonull.NewNullable(*timeout)
			}

			if err := peer.Connect(host, port, opts); err != nil {
				c.Err(err)
			}
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "close",
		Help: "close a connection: <ip:port> ['silent']",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			addr, err := addrArg(c)
			if err != nil {
				c.Err(err)
				return
			}

			notify := len(c.Args) < 2 || c.Args[1] != "silent"
			peer.CloseConnection(addr, notify, 0, peerlink.PriorityImmediate)
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "cancel",
		Help: "cancel a connection attempt: <ip:port>",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			addr, err := addrArg(c)
			if err != nil {
				c.Err(err)
				return
			}

			peer.CancelConnectionAttempt(addr)
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "show the state of a connection: <ip:port>",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			addr, err := addrArg(c)
			if err != nil {
				c.Err(err)
				return
			}

			c.Println(peer.GetConnectionState(addr))
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "send data to a connection: <ip:port> <hex>, the first byte must be 0x86 or higher",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			addr, err := addrArg(c)
			if err != nil {
				c.Err(err)
				return
			}

			data, err := hex.DecodeString(argOrRead(c, 1, "enter data, as hex"))
			if err != nil {
				c.Err(err)
				return
			}

			if err := peer.Send(addr, data); err != nil {
				c.Err(err)
			}
		},
	})

	return c
}

// Offline commands
func offlineCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "offline",
		Help: "unconnected messaging",
	}

	c.AddCmd(&ishell.Cmd{
		Name: "ping",
		Help: "ping: <host> <port> ['open']",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			host, port, err := hostPort(c)
			if err != nil {
				c.Err(err)
				return
			}

			if len(c.Args) > 2 && c.Args[2] == "open" {
				err = peer.PingOpenConnections(host, port)
			} else {
				err = peer.Ping(host, port)
			}
			if err != nil {
				c.Err(err)
			}
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "advertise",
		Help: "advertise: <host> <port> <text>",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			host, port, err := hostPort(c)
			if err != nil {
				c.Err(err)
				return
			}

			if err := peer.AdvertiseSystem(host, port, []byte(argOrRead(c, 2, "enter text"))); err != nil {
				c.Err(err)
			}
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "response",
		Help: "show or set the ping response text",
		Func: func(c *ishell.Context) {
			if !started(c) {
				return
			}

			if len(c.Args) == 0 {
				c.Printf("%q\n", peer.GetOfflineResponse())
				return
			}

			peer.SetOfflineResponse([]byte(c.Args[0]))
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "wait",
		Help: "wait for a duration, for scripted sessions",
		Func: func(c *ishell.Context) {
			d, err := time.ParseDuration(argOrRead(c, 0, "enter duration"))
			if err != nil {
				c.Err(err)
				return
			}
			time.Sleep(d)
		},
	})

	return c
}
