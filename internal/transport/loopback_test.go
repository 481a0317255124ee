package transport

import (
	"context"
	"testing"

	"github.com/gabepages/botkit/internal/models"
)

func TestLoopbackRecordsInOrder(t *testing.T) {
	lb := NewLoopback()
	ctx := context.Background()

	if err := lb.Send(ctx, "C1", "one"); err != nil {
		t.Fatal(err)
	}
	rich := &models.RichMessage{Title: "forecast", Color: "#7CD197"}
	if err := lb.SendRich(ctx, "C1", rich); err != nil {
		t.Fatal(err)
	}
	msg := Inbound("U1", "C1", "hello", models.ScopeDirectMessage)
	if err := lb.React(ctx, msg, "robot_face"); err != nil {
		t.Fatal(err)
	}

	out := lb.Outbox()
	if len(out) != 3 {
		t.Fatalf("outbox length = %d", len(out))
	}
	if out[0].Text != "one" {
		t.Fatalf("out[0] = %+v", out[0])
	}
	if out[1].Rich == nil || out[1].Rich.Title != "forecast" {
		t.Fatalf("out[1] = %+v", out[1])
	}
	if out[2].Reaction != "robot_face" || out[2].ToMsgID != msg.ID {
		t.Fatalf("out[2] = %+v", out[2])
	}

	lb.Reset()
	if len(lb.Outbox()) != 0 {
		t.Fatal("Reset left items behind")
	}
}

func TestLoopbackNotify(t *testing.T) {
	lb := NewLoopback()
	var seen []Outbound
	lb.Notify = func(o Outbound) { seen = append(seen, o) }

	if err := lb.Send(context.Background(), "C1", "ping"); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0].Text != "ping" {
		t.Fatalf("notify saw %+v", seen)
	}
}

func TestDirectChannel(t *testing.T) {
	if got := DirectChannel("U42"); got != "D.U42" {
		t.Fatalf("DirectChannel = %s", got)
	}
}

func TestInboundPopulatesMessage(t *testing.T) {
	m := Inbound("U1", "C9", "text", models.ScopeMention)
	if m.ID == "" || m.Sender != "U1" || m.Channel != "C9" || m.Scope != models.ScopeMention {
		t.Fatalf("message = %+v", m)
	}
	if m.Timestamp.IsZero() {
		t.Fatal("zero timestamp")
	}
}
