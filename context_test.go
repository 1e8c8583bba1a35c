package authbridge

import (
	"context"
	"errors"
	"testing"
)

func TestUseAuthOutsideScopePanics(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrNoAuthContext) {
			t.Fatalf("expected ErrNoAuthContext panic, got %v", r)
		}
	}()
	UseAuth(context.Background())
}

func TestUseAuthInScope(t *testing.T) {
	src := &fakeSessionSource{}
	be := &fakeBackend{}
	a := newTestBrowser(t, src, be, &InitialAuthState{IsAuthenticated: true})

	ctx := WithAuth(context.Background(), a)
	view := UseAuth(ctx)
	if view.IsLoading() || !view.IsAuthenticated() {
		t.Errorf("unexpected view state %+v", view.State())
	}

	src.emit(SessionState{})
	if view.IsAuthenticated() {
		t.Error("view must follow the live state")
	}

	if _, ok := FromContext(context.Background()); ok {
		t.Error("FromContext on an empty context must report false")
	}
}
