package actors

import (
	"net/netip"

	"github.com/edup2p/peerlink/types/msgpeer"
	"github.com/edup2p/peerlink/types/sysaddr"
)

func (nm *NetworkManager) handleOffline(from sysaddr.SystemAddress, m msgpeer.Message) {
	nm.cfg.Metrics.Offline.WithLabelValues(m.Kind().String()).Inc()

	reply, entry := nm.cfg.Offline.Handle(from, m, nm.cfg.Clock.Base().Now(), nm.cfg.Table.AdmitIncoming())

	if reply != nil {
		_ = nm.send(from, reply)
	}

	if entry != nil {
		nm.cfg.Queue.Push(*entry)
	}
}

func (nm *NetworkManager) ping(to sysaddr.SystemAddress, onlyIfOpen bool) {
	_ = nm.send(to, nm.cfg.Offline.Ping(nm.cfg.Clock.MS(), onlyIfOpen))
}

func (nm *NetworkManager) advertise(to sysaddr.SystemAddress, data []byte) {
	_ = nm.send(to, nm.cfg.Offline.Advertise(data))
}

func (nm *NetworkManager) observeExternal(ap netip.AddrPort) {
	if !ap.IsValid() || ap == nm.external {
		return
	}

	L(nm).Debug("learned external address", "addr", ap)
	nm.external = ap
}
