package monitor

import (
	"time"

	"github.com/kylerisse/icmpmonitor/pkg/host"
	"github.com/kylerisse/icmpmonitor/pkg/icmp"
)

// Tick evaluates every host in registry order: first the down deadline,
// then whether a probe is due.
func (m *Monitor) Tick(now time.Time) {
	for _, h := range m.reg.Hosts() {
		m.checkSilence(h, now)
		if h.ProbeDue(now) {
			m.probe(h, now)
		}
		m.publish(h)
	}
}

func (m *Monitor) checkSilence(h *host.Host, now time.Time) {
	wasUp := h.Up()
	silent, notify := h.Silence(now, m.grace, m.repeat)
	if !silent {
		return
	}

	if wasUp {
		m.hostLog(h).Warnf("host down, no reply for %v", now.Sub(h.LastReply).Truncate(time.Millisecond))
	}
	if !wasUp && !notify {
		return
	}
	if notify {
		m.notify(h, h.DownCmd, "down")
	}
	m.emit(Event{Kind: EventDown, Host: h.Name, Address: h.Address, Time: now})
}

func (m *Monitor) probe(h *host.Host, now time.Time) {
	pkt, err := icmp.EchoRequest(m.ident, h.Discriminator, now)
	if err == nil {
		err = h.Conn.Send(pkt)
	}
	h.ProbeSent(now, err)

	if err != nil {
		m.hostLog(h).Warnf("probe not sent: %v", err)
		m.emit(Event{Kind: EventSendFailed, Host: h.Name, Address: h.Address, Time: now, Up: h.Up(), Err: err})
		return
	}

	m.hostLog(h).Debugf("probe sent, id %d seq %d", m.ident, h.Discriminator)
	m.emit(Event{Kind: EventProbeSent, Host: h.Name, Address: h.Address, Time: now, Up: h.Up()})
}
