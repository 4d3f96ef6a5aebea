package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/gorilla/websocket"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestErrorKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "provider", err: fmt.Errorf("wrapped: %w", &ProviderError{Code: 401}), want: "provider"},
		{name: "timeout", err: &ConnectionError{Op: "read provider", Err: timeoutError{}}, want: "timeout"},
		{name: "protocol", err: &ProtocolError{Err: errors.New("bad json")}, want: "protocol"},
		{name: "connection", err: &ConnectionError{Op: "dial", Err: errors.New("refused")}, want: "connection"},
		{name: "internal", err: context.Canceled, want: "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorKind(tc.err); got != tc.want {
				t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsClosure(t *testing.T) {
	closures := []error{
		&websocket.CloseError{Code: websocket.CloseNormalClosure},
		&websocket.CloseError{Code: websocket.CloseGoingAway},
		&websocket.CloseError{Code: websocket.CloseNoStatusReceived},
		fmt.Errorf("read: %w", net.ErrClosed),
		io.EOF,
		websocket.ErrCloseSent,
	}
	for _, err := range closures {
		if !IsClosure(err) {
			t.Fatalf("expected %v to be a closure", err)
		}
	}

	failures := []error{
		nil,
		&websocket.CloseError{Code: websocket.CloseAbnormalClosure},
		&websocket.CloseError{Code: websocket.CloseInternalServerErr},
		timeoutError{},
	}
	for _, err := range failures {
		if IsClosure(err) {
			t.Fatalf("expected %v not to be a closure", err)
		}
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	if !errors.Is(&ConnectionError{Op: "dial", Err: cause}, cause) {
		t.Fatal("ConnectionError should unwrap to its cause")
	}
	if !errors.Is(&ProtocolError{Err: cause}, cause) {
		t.Fatal("ProtocolError should unwrap to its cause")
	}
}

func TestIsDisconnect(t *testing.T) {
	abrupt := &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	if IsClosure(abrupt) {
		t.Fatal("abnormal closure must not count as a clean provider close")
	}
	if !IsDisconnect(abrupt) {
		t.Fatal("abnormal closure from a client must count as a disconnect")
	}
	if !IsDisconnect(&websocket.CloseError{Code: websocket.CloseGoingAway}) {
		t.Fatal("going away must count as a disconnect")
	}
	if IsDisconnect(&websocket.CloseError{Code: websocket.CloseInternalServerErr}) {
		t.Fatal("server error close must not count as a disconnect")
	}
	if IsDisconnect(timeoutError{}) {
		t.Fatal("timeouts must not count as a disconnect")
	}
}
