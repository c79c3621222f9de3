// Package mqtt connects the lighting server to an MQTT broker.
//
// Two things travel over the broker:
//   - device events: attach and detach notices published by the
//     coordinator on fcserver/events/devices, plus a retained
//     online/offline status on fcserver/status (with a Last Will so a crash
//     is visible too).
//   - remote control: JSON control messages received on fcserver/control
//     are answered exactly like WebSocket text frames and the replies are
//     published on fcserver/control/reply.
//
// Pixel data never goes over MQTT; OPC over TCP or WebSocket is the
// real-time path.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	bridge := mqtt.NewControlBridge(client, coord, byte(cfg.MQTT.QoS))
//	if err := bridge.Start(ctx); err != nil {
//	    return err
//	}
//	defer bridge.Stop()
package mqtt
