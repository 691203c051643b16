package host

import "time"

// ProbeDue reports whether at least one interval has passed since the last
// probe was sent.
func (h *Host) ProbeDue(now time.Time) bool {
	return h.LastProbe.IsZero() || now.Sub(h.LastProbe) >= h.Interval
}

// ProbeSent records a probe attempt at now. The probe clock advances
// whether or not the send succeeded.
func (h *Host) ProbeSent(now time.Time, err error) {
	h.LastProbe = now
	if err != nil {
		h.SendFailures++
		return
	}
	h.Sent++
}

// Silence evaluates the down deadline: the host is silent once more than
// MaxDelay+grace has passed since its last reply. A silent host is marked
// down. notify reports whether down_cmd should run, which happens once per
// down episode unless repeatDown is set.
func (h *Host) Silence(now time.Time, grace time.Duration, repeatDown bool) (silent, notify bool) {
	if now.Sub(h.LastReply) <= h.MaxDelay+grace {
		return false, false
	}
	h.up = false
	notify = !h.downNotified || repeatDown
	h.downNotified = true
	return true, notify
}

// Replied records a matching echo reply received at now with the given
// round-trip time. notify reports whether the host came up, in which case
// up_cmd should run. Replies to a host already up only refresh its state.
func (h *Host) Replied(now time.Time, rtt time.Duration) (notify bool) {
	h.LastReply = now
	h.LastRTT = rtt
	h.Received++
	h.downNotified = false

	if h.up {
		return false
	}
	h.up = true
	return true
}
