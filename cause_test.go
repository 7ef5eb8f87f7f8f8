package keel

import (
	"errors"
	"testing"
)

func TestCauseIsError(t *testing.T) {
	boom := errors.New("boom")

	for _, c := range []DisconnectCause{
		CauseConnectFailed(boom),
		CauseError(boom),
	} {
		if !c.IsError() {
			t.Fatalf("%s should be an error cause", c)
		}
		if c.Err != boom {
			t.Fatalf("%s lost its payload", c)
		}
	}

	for _, c := range []DisconnectCause{
		CauseDisconnect,
		CauseClosed,
		CauseTimedOut,
		CauseTerminated,
		CauseUnhandled,
	} {
		if c.IsError() {
			t.Fatalf("%s should not be an error cause", c)
		}
	}
}

func TestCauseString(t *testing.T) {
	if s := CauseTimedOut.String(); s != "timed_out" {
		t.Fatalf("got %q", s)
	}
	if s := CauseError(errors.New("boom")).String(); s != "error: boom" {
		t.Fatalf("got %q", s)
	}
}
