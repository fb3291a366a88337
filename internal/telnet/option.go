package telnet

// QState is the observable negotiation state of one side of an option.
// WantNo and WantYes mean a request is outstanding.
type QState int

const (
	No QState = iota
	Yes
	WantNo
	WantYes
)

func (q QState) String() string {
	switch q {
	case No:
		return "no"
	case Yes:
		return "yes"
	case WantNo:
		return "want-no"
	case WantYes:
		return "want-yes"
	default:
		return "unknown"
	}
}

// OptionState is the application's handle on a registered option.
type OptionState interface {
	Allow(them, us bool) OptionState
	AllowThem(bool) OptionState
	AllowUs(bool) OptionState

	Enabled() (them, us bool)
	EnabledForThem() bool
	EnabledForUs() bool
	Option() byte
	Queued(Side) bool
	State(Side) QState
}

// RFC 1143 states. The Opposite variants carry a queued request for the
// other outcome, to be sent once the outstanding one is answered.
type qState int

const (
	qNo qState = 0 + iota
	qYes
	qWantNoEmpty
	qWantNoOpposite
	qWantYesEmpty
	qWantYesOpposite
)

func (q qState) public() QState {
	switch q {
	case qYes:
		return Yes
	case qWantNoEmpty, qWantNoOpposite:
		return WantNo
	case qWantYesEmpty, qWantYesOpposite:
		return WantYes
	default:
		return No
	}
}

// optionSide is the Q method state machine for one direction of an option.
type optionSide struct {
	allow bool
	state qState
}

func (s *optionSide) enabled() bool { return s.state == qYes }

func (s *optionSide) queued() bool {
	return s.state == qWantNoOpposite || s.state == qWantYesOpposite
}

// enable handles a local request to enable and returns the verb to send,
// or zero.
func (s *optionSide) enable(yes byte) byte {
	switch s.state {
	case qNo:
		s.state = qWantYesEmpty
		return yes
	case qWantNoEmpty:
		s.state = qWantNoOpposite
	case qWantYesOpposite:
		s.state = qWantYesEmpty
	}
	return 0
}

// disable handles a local request to disable and returns the verb to send,
// or zero.
func (s *optionSide) disable(no byte) byte {
	switch s.state {
	case qYes:
		s.state = qWantNoEmpty
		return no
	case qWantNoOpposite:
		s.state = qWantNoEmpty
	case qWantYesEmpty:
		s.state = qWantYesOpposite
	}
	return 0
}

// agree handles WILL (for them) or DO (for us) from the peer.
func (s *optionSide) agree(yes, no byte) byte {
	switch s.state {
	case qNo:
		if s.allow {
			s.state = qYes
			return yes
		}
		return no
	case qYes:
		// acknowledge again; the peer evidently missed our answer
		return yes
	case qWantNoEmpty:
		s.state = qNo
	case qWantNoOpposite:
		s.state = qYes
	case qWantYesEmpty:
		s.state = qYes
	case qWantYesOpposite:
		s.state = qWantNoEmpty
		return no
	}
	return 0
}

// refuse handles WONT (for them) or DONT (for us) from the peer. It also
// reports whether the peer turned down our own request to enable.
func (s *optionSide) refuse(yes, no byte) (send byte, refused bool) {
	switch s.state {
	case qYes:
		s.state = qNo
		return no, false
	case qWantNoEmpty:
		s.state = qNo
	case qWantNoOpposite:
		s.state = qWantYesEmpty
		return yes, false
	case qWantYesEmpty:
		s.state = qNo
		return 0, true
	case qWantYesOpposite:
		s.state = qNo
	}
	return 0, false
}

// verbs returns the verbs this end sends to enable and disable a side.
func verbs(side Side) (yes, no byte) {
	if side == Us {
		return WILL, WONT
	}
	return DO, DONT
}

// optionState is the descriptor for one option code: a state machine per
// side and the handler for its subnegotiations.
type optionState struct {
	opt        byte
	registered bool
	handler    Handler
	us         optionSide
	them       optionSide
}

func (o *optionState) Allow(them, us bool) OptionState {
	o.AllowThem(them)
	o.AllowUs(us)
	return o
}

func (o *optionState) AllowThem(allow bool) OptionState {
	o.them.allow = allow
	return o
}

func (o *optionState) AllowUs(allow bool) OptionState {
	o.us.allow = allow
	return o
}

func (o *optionState) Enabled() (them, us bool) { return o.EnabledForThem(), o.EnabledForUs() }
func (o *optionState) EnabledForThem() bool     { return o.them.enabled() }
func (o *optionState) EnabledForUs() bool       { return o.us.enabled() }

func (o *optionState) Option() byte { return o.opt }

func (o *optionState) Queued(side Side) bool { return o.side(side).queued() }

func (o *optionState) State(side Side) QState { return o.side(side).state.public() }

func (o *optionState) active() bool { return o.us.enabled() || o.them.enabled() }

func (o *optionState) side(side Side) *optionSide {
	if side == Us {
		return &o.us
	}
	return &o.them
}

// request applies a local enable or disable request. It returns the
// negotiation to send, if any, and the change in enabled state, if any.
func (o *optionState) request(side Side, enable bool) (Element, *OptionData) {
	s := o.side(side)
	yes, no := verbs(side)
	before := s.enabled()
	var send byte
	if enable {
		send = s.enable(yes)
	} else {
		send = s.disable(no)
	}
	return o.outcome(side, send, before, false)
}

// receive applies a negotiation from the peer.
func (o *optionState) receive(cmd byte) (Element, *OptionData) {
	var side Side
	switch cmd {
	case DO, DONT:
		side = Us
	case WILL, WONT:
		side = Them
	default:
		return nil, nil
	}
	s := o.side(side)
	yes, no := verbs(side)
	before := s.enabled()
	var send byte
	var refused bool
	switch cmd {
	case DO, WILL:
		send = s.agree(yes, no)
	case DONT, WONT:
		send, refused = s.refuse(yes, no)
	}
	return o.outcome(side, send, before, refused)
}

// reset forces a side back to No without negotiating.
func (o *optionState) reset(side Side) *OptionData {
	s := o.side(side)
	before := s.enabled()
	s.state = qNo
	_, change := o.outcome(side, 0, before, false)
	return change
}

func (o *optionState) outcome(side Side, send byte, before, refused bool) (reply Element, change *OptionData) {
	if send != 0 {
		reply = Negotiation{Cmd: send, Opt: o.opt}
	}
	if after := o.side(side).enabled(); after != before || refused {
		change = &OptionData{Opt: o.opt, Side: side, Enabled: after, Refused: refused}
	}
	return
}
