package memory

import (
	"context"
	"testing"
)

func TestRecorderStoresMessages(t *testing.T) {
	t.Parallel()

	rec := New()
	if err := rec.Send(context.Background(), `{"event":"product_created"}`); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	if err := rec.Send(context.Background(), `{"event":"product_deleted","id":1}`); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	kinds, err := rec.Events()
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != "product_created" || kinds[1] != "product_deleted" {
		t.Fatalf("events not recorded correctly: %+v", kinds)
	}

	msgs := rec.Messages()
	msgs[0] = "modified"
	if rec.Messages()[0] == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestRecorderEventsRejectsNonJSON(t *testing.T) {
	t.Parallel()

	rec := New()
	_ = rec.Send(context.Background(), "plain text")
	if _, err := rec.Events(); err == nil {
		t.Fatal("expected decode error for non-JSON message")
	}
}
