package mqtt

import (
	"context"
	"fmt"
)

// PubSub is the part of *Client the control bridge uses.
type PubSub interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
}

// ControlHandler answers JSON control messages.
type ControlHandler interface {
	HandleControl(ctx context.Context, data []byte) (reply []byte, ok bool)
}

// ControlBridge answers control messages received over MQTT.
//
// Every message on Topics.Control is passed to the handler and a reply,
// if any, is published on Topics.ControlReply. Clients correlate replies
// with requests through their own fields, which replies echo.
type ControlBridge struct {
	client  PubSub
	handler ControlHandler
	qos     byte
	ctx     context.Context
}

// NewControlBridge creates a bridge. Nothing is subscribed until Start.
func NewControlBridge(client PubSub, handler ControlHandler, qos byte) *ControlBridge {
	return &ControlBridge{client: client, handler: handler, qos: qos}
}

// Start subscribes to the control topic. ctx is passed to the handler
// for every message.
func (b *ControlBridge) Start(ctx context.Context) error {
	b.ctx = ctx
	if err := b.client.Subscribe(Topics{}.Control(), b.qos, b.handle); err != nil {
		return fmt.Errorf("subscribing to control topic: %w", err)
	}
	return nil
}

// Stop unsubscribes from the control topic.
func (b *ControlBridge) Stop() error {
	return b.client.Unsubscribe(Topics{}.Control())
}

func (b *ControlBridge) handle(_ string, payload []byte) error {
	reply, ok := b.handler.HandleControl(b.ctx, payload)
	if !ok {
		return nil
	}
	if err := b.client.Publish(Topics{}.ControlReply(), reply, b.qos, false); err != nil {
		return fmt.Errorf("publishing control reply: %w", err)
	}
	return nil
}
