package mqtt

import (
	"context"
	"errors"
	"testing"
)

type published struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// fakePubSub records publishes and keeps subscribed handlers.
type fakePubSub struct {
	handlers   map[string]MessageHandler
	published  []published
	publishErr error
	subErr     error
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{handlers: make(map[string]MessageHandler)}
}

func (f *fakePubSub) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{topic, string(payload), qos, retained})
	return nil
}

func (f *fakePubSub) Subscribe(topic string, _ byte, handler MessageHandler) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakePubSub) Unsubscribe(topic string) error {
	delete(f.handlers, topic)
	return nil
}

type echoHandler struct{}

func (echoHandler) HandleControl(_ context.Context, data []byte) ([]byte, bool) {
	if string(data) == "not json" {
		return nil, false
	}
	return append([]byte("reply "), data...), true
}

func TestControlBridge(t *testing.T) {
	ps := newFakePubSub()
	b := NewControlBridge(ps, echoHandler{}, 1)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	handler, ok := ps.handlers["fcserver/control"]
	if !ok {
		t.Fatal("control topic not subscribed")
	}

	if err := handler("fcserver/control", []byte(`{"type":"server_info"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if err := handler("fcserver/control", []byte("not json")); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	want := []published{{"fcserver/control/reply", `reply {"type":"server_info"}`, 1, false}}
	if len(ps.published) != len(want) || ps.published[0] != want[0] {
		t.Errorf("published = %+v, want %+v", ps.published, want)
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(ps.handlers) != 0 {
		t.Error("control topic still subscribed after Stop")
	}
}

func TestControlBridge_Errors(t *testing.T) {
	ps := newFakePubSub()
	ps.subErr = ErrNotConnected
	if err := NewControlBridge(ps, echoHandler{}, 0).Start(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}

	ps = newFakePubSub()
	b := NewControlBridge(ps, echoHandler{}, 0)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ps.publishErr = ErrPublishFailed
	if err := ps.handlers["fcserver/control"]("fcserver/control", []byte("{}")); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("handler error = %v, want ErrPublishFailed", err)
	}
}

var _ PubSub = (*Client)(nil)
