// Package authbridge connects a session-cookie auth provider to a reactive
// backend client and exposes one auth state to the rest of an application.
//
// Three independent signals decide whether a user is signed in: the auth
// state the server rendered into the page, the provider's live session
// stream, and the backend's answer after it tried the exchanged JWT. Auth
// reconciles them into an AuthState of {IsLoading, IsAuthenticated}.
//
// # Architecture
//
// Session Observer: subscribes to the provider's session stream and tracks
// whether a session is present, whether the stream is pending, and whether it
// has ever settled.
//
// Confirmation Gate: registers the token fetcher with the backend client
// while a session is expected and drops confirmations that arrive after the
// registration was torn down.
//
// Token Fetcher: exchanges the provider credential for a backend JWT,
// retrying network failures with exponential backoff and jitter.
//
// Reconciler: a pure function of the signals above. Until the session stream
// settles the server hint wins, so users the server already knows never see a
// loading state.
//
// # Basic Usage
//
// Browser mode, with the provider client from the authclient package:
//
//	import (
//	    "github.com/panyam/authbridge"
//	    "github.com/panyam/authbridge/authclient"
//	)
//
//	client, _ := authclient.New("https://app.example.com/api/auth")
//	auth, err := authbridge.New(authbridge.Options{
//	    AuthClient:  client,
//	    BackendURL:  "https://happy-otter-123.convex.cloud",
//	    ServerState: func() *authbridge.InitialAuthState { return hint },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer auth.Close()
//
//	ctx = authbridge.WithAuth(ctx, auth)
//
// Later, anywhere below ctx:
//
//	view := authbridge.UseAuth(ctx)
//	if view.IsAuthenticated() {
//	    ...
//	}
//
// External mode swaps the cookie session for a credential getter, such as a
// device token read from a credstore:
//
//	auth, err := authbridge.New(authbridge.Options{
//	    AuthClient:      client,
//	    ExternalSession: &credstore.Session{Store: store, ServerURL: siteURL},
//	})
//
// # Configuration
//
// When neither Options.Backend nor Options.BackendURL is set, the backend URL
// is read from PUBLIC_CONVEX_URL. See Config for the other variables.
//
// # Testing
//
// Every collaborator is an interface (SessionSource, TokenExchanger,
// BackendClient, ExternalSession), so the state machine can be driven with
// in-memory fakes. RetryPolicy.Sleep lets tests observe backoff delays without
// waiting for them.
package authbridge
