// Package coordinator owns the attached devices and routes traffic to them.
//
// It sits between the network server and the device drivers:
//
//	netserver ──OPC message──▶ Coordinator ──▶ every attached device
//	netserver ──control JSON─▶ Coordinator ──▶ reply JSON
//	transport.Watcher ──arrival/removal──▶ Coordinator ──▶ connected_devices_changed broadcast
//
// Every pixel message goes to every device; each device decides relevance
// through its own mapping. Control messages are dispatched by type:
// list_connected_devices, server_info and device_history are answered by
// the coordinator, anything carrying a "device" matcher is handed to each
// matching device in turn until one of them reports an error.
//
// # Thread Safety
//
// A single mutex serialises device mutation against arrival and removal.
// All exported methods are safe for concurrent use.
package coordinator
