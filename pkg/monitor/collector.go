package monitor

import (
	"time"

	"github.com/kylerisse/icmpmonitor/pkg/host"
	"github.com/kylerisse/icmpmonitor/pkg/icmp"
)

// Collect classifies one datagram read from h's connection at time at.
// Anything other than an echo reply carrying this process's identifier and
// h's discriminator is discarded without changing state.
func (m *Monitor) Collect(h *host.Host, data []byte, at time.Time) {
	log := m.hostLog(h)

	reply, err := icmp.ParseReply(data)
	if err != nil {
		log.Debugf("discarding datagram: %v", err)
		return
	}
	if !reply.IsEchoReply(m.ident, h.Discriminator) {
		log.Debugf("discarding ICMP type %d code %d id %d seq %d from %s",
			reply.Type, reply.Code, reply.ID, reply.Seq, reply.Source)
		return
	}
	if m.verify && !reply.ChecksumOK {
		log.Debugf("discarding echo reply with bad checksum %#04x", reply.Checksum)
		return
	}

	var rtt time.Duration
	if sent, err := reply.SentAt(); err == nil {
		rtt = icmp.Elapsed(at, sent)
	}

	if h.Replied(at, rtt) {
		log.Infof("host up, rtt %v", rtt)
		m.notify(h, h.UpCmd, "up")
		m.emit(Event{Kind: EventUp, Host: h.Name, Address: h.Address, Time: at, Up: true, RTT: rtt})
	} else {
		log.Debugf("reply, rtt %v", rtt)
	}

	m.emit(Event{Kind: EventReply, Host: h.Name, Address: h.Address, Time: at, Up: true, RTT: rtt})
	m.publish(h)
}
