package relay

// Mode selects the delivery semantics for the whole process, fixed at
// startup.
type Mode int

const (
	// ModeForward keeps the network's native "forwarded from" attribution.
	ModeForward Mode = iota
	// ModeCopy recomposes the message without attribution to the source.
	ModeCopy
)

func (m Mode) String() string {
	if m == ModeCopy {
		return "copy"
	}
	return "forward"
}
