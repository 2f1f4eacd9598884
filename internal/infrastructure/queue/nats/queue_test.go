package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

func TestEventSubjectSanitizesTaskID(t *testing.T) {
	q := newQueue(nil, Options{EventsSubject: "ev"}, nil)

	if got := q.EventSubject("a.b*c> d"); got != "ev.a_b_c__d" {
		t.Fatalf("unexpected subject %q", got)
	}
	if q.submissionsSubject != DefaultSubmissionsSubject {
		t.Fatalf("expected default submissions subject, got %q", q.submissionsSubject)
	}
}

func TestRecordsNATSFailure(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{err: nats.ErrConnectionClosed, want: true},
		{err: nats.ErrNoServers, want: true},
		{err: context.Canceled, want: false},
		{err: errors.New("nats: invalid subject"), want: false},
	}
	for _, tc := range cases {
		if got := recordsNATSFailure(tc.err); got != tc.want {
			t.Fatalf("recordsNATSFailure(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestWrapTransportKeepsKind(t *testing.T) {
	err := wrapTransport("nats.publish_event", nats.ErrConnectionClosed)
	if !errors.Is(err, domain.ErrTransport) || !errors.Is(err, nats.ErrConnectionClosed) {
		t.Fatalf("unexpected wrapped error: %v", err)
	}
	if wrapTransport("op", nil) != nil {
		t.Fatal("nil must stay nil")
	}
}
