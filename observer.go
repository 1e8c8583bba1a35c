package authbridge

// sessionObserver projects the provider's session stream into an AuthSignal
// and tracks whether the client has ever produced a definitive answer.
type sessionObserver struct {
	// serverAuth is the server hint; it stands in for a present session until
	// the first non-pending emission.
	serverAuth bool

	signal   AuthSignal
	pending  bool
	settled  bool
	received bool
}

func newSessionObserver(serverAuth bool) sessionObserver {
	return sessionObserver{serverAuth: serverAuth, pending: true}
}

// apply folds one emission into the observer and returns the backend verdict
// after the transition rules:
//
//   - a session that disappears (present, or hinted by the server before
//     settlement, then a definitive absent) forces the verdict to rejected;
//   - re-entering a pending phase after settlement drops a stale verdict back
//     to unconfirmed.
func (o *sessionObserver) apply(session SessionState, verdict BackendVerdict) BackendVerdict {
	wasPresent := o.signal == SignalPresent
	hinted := o.serverAuth && !o.settled

	o.received = true
	if session.Data != nil {
		o.signal = SignalPresent
	} else {
		o.signal = SignalAbsent
	}
	o.pending = session.IsPending
	if !session.IsPending {
		o.settled = true
	}

	if o.signal == SignalAbsent && (wasPresent || (hinted && !session.IsPending)) {
		verdict = VerdictRejected
	}
	if session.IsPending && verdict != VerdictUnconfirmed && o.settled {
		verdict = VerdictUnconfirmed
	}
	return verdict
}

// present reports whether the provider currently claims a session.
func (o *sessionObserver) present() bool {
	return o.signal == SignalPresent
}
