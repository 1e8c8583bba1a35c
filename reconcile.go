package authbridge

// reconcileBrowser derives the visible state for cookie sessions.
//
// Until the session stream has settled once, only the server hint is
// trusted, which is what removes the loading flash for users the server
// already knows. After that the hint is ignored for good.
func reconcileBrowser(serverAuth bool, o sessionObserver, verdict BackendVerdict) AuthState {
	if !o.settled {
		return AuthState{
			IsLoading:       !serverAuth,
			IsAuthenticated: serverAuth,
		}
	}
	present := o.present()
	return AuthState{
		IsLoading:       o.pending || (present && verdict == VerdictUnconfirmed),
		IsAuthenticated: present && verdict == VerdictConfirmed,
	}
}

// reconcileExternal derives the visible state for headless sessions, where
// the backend verdict is the only signal.
func reconcileExternal(verdict BackendVerdict) AuthState {
	return AuthState{
		IsLoading:       verdict == VerdictUnconfirmed,
		IsAuthenticated: verdict == VerdictConfirmed,
	}
}
