package authbridge

// gateAction is the backend call a gate run asks for. Actions are applied
// outside the state lock, so each carries the generation it belongs to and
// is dropped if a newer run happened in between.
type gateAction struct {
	gen      uint64
	register bool
}

// confirmationGate decides when the token fetcher is registered with the
// backend. Every run gets a new generation; confirmations from an older
// generation are ignored.
type confirmationGate struct {
	gen       uint64
	ran       bool
	predicate bool
}

// sync re-runs the gate when the should-authenticate predicate differs from
// the last run. The previous run is torn down first.
func (g *confirmationGate) sync(shouldAuthenticate bool, verdict *BackendVerdict) (gateAction, bool) {
	if g.ran && g.predicate == shouldAuthenticate {
		return gateAction{}, false
	}
	return g.restart(shouldAuthenticate, verdict), true
}

// restart tears down the current run and starts a new one unconditionally.
func (g *confirmationGate) restart(shouldAuthenticate bool, verdict *BackendVerdict) gateAction {
	g.teardown(verdict)
	g.ran = true
	g.predicate = shouldAuthenticate
	if !shouldAuthenticate {
		*verdict = VerdictUnconfirmed
	}
	return gateAction{gen: g.gen, register: shouldAuthenticate}
}

// teardown invalidates in-flight confirmations. A run that had been
// confirmed must not look loaded afterwards, so confirmed collapses to
// rejected and anything else to unconfirmed.
func (g *confirmationGate) teardown(verdict *BackendVerdict) {
	if g.ran {
		if g.predicate && *verdict == VerdictConfirmed {
			*verdict = VerdictRejected
		} else {
			*verdict = VerdictUnconfirmed
		}
	}
	g.gen++
	g.ran = false
}

// accepts reports whether a confirmation from generation gen may still write.
func (g *confirmationGate) accepts(gen uint64) bool {
	return g.ran && g.predicate && g.gen == gen
}
