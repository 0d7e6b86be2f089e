package natsutil

import (
	"context"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

type runEvent struct {
	RunID    string  `json:"run_id"`
	Location string  `json:"location"`
	Volume   float64 `json:"volume"`
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)
	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}

	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("traceparent", "00-abc-def-02")
	if got := carrier.Get("traceparent"); got != "00-abc-def-02" {
		t.Fatalf("expected overwritten traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestPublishSubscribe(t *testing.T) {
	nc := startTestNATS(t)

	ch := make(chan runEvent, 1)
	sub, err := Subscribe(nc, "resilience.run.completed", func(ctx context.Context, e runEvent) {
		ch <- e
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	err = Publish(context.Background(), nc, "resilience.run.completed", runEvent{RunID: "r1", Location: "Chicago IL", Volume: 3.5})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-ch:
		if e.RunID != "r1" || e.Location != "Chicago IL" || e.Volume != 3.5 {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSubscribeDropsMalformed(t *testing.T) {
	nc := startTestNATS(t)

	called := make(chan struct{}, 1)
	sub, err := Subscribe(nc, "test.malformed", func(ctx context.Context, e runEvent) {
		called <- struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	nc.Publish("test.malformed", []byte("{bad"))
	nc.Flush()

	select {
	case <-called:
		t.Fatal("handler should not be called for malformed data")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleAndRequest(t *testing.T) {
	nc := startTestNATS(t)

	sub, err := Handle(nc, "test.double", "workers", func(ctx context.Context, in []float64) ([]float64, error) {
		out := make([]float64, len(in))
		for i, v := range in {
			out[i] = 2 * v
		}
		return out, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	got, err := Request[[]float64, []float64](context.Background(), nc, "test.double", []float64{1, 2.5})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 5 {
		t.Fatalf("unexpected response: %v", got)
	}
}

func TestHandleReportsError(t *testing.T) {
	nc := startTestNATS(t)

	sub, err := Handle(nc, "test.fail", "", func(ctx context.Context, in runEvent) (runEvent, error) {
		return runEvent{}, errors.New("model file not found")
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	_, err = Request[runEvent, runEvent](context.Background(), nc, "test.fail", runEvent{RunID: "r2"})
	if !IsRemote(err) {
		t.Fatalf("expected remote error, got %v", err)
	}
	var re *RemoteError
	errors.As(err, &re)
	if re.Msg != "model file not found" {
		t.Fatalf("unexpected message %q", re.Msg)
	}
}

func TestRequestHonoursContext(t *testing.T) {
	nc := startTestNATS(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := Request[runEvent, runEvent](ctx, nc, "test.noreply", runEvent{RunID: "x"})
	if err == nil {
		t.Fatal("expected error with no responder")
	}
	if IsRemote(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("request ignored context deadline")
	}
}

func TestRequestMarshalErrors(t *testing.T) {
	nc := startTestNATS(t)

	if err := Publish(context.Background(), nc, "test.err", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
	if _, err := Request[chan int, runEvent](context.Background(), nc, "test.err", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}

	sub, err := nc.Subscribe("test.badjson", func(msg *nats.Msg) {
		msg.Respond([]byte("{invalid"))
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	if _, err := Request[runEvent, runEvent](context.Background(), nc, "test.badjson", runEvent{}); err == nil {
		t.Fatal("expected unmarshal error")
	}
}
