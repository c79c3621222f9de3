package mqtt

// TopicPrefix is the root of every topic the server uses.
const TopicPrefix = "fcserver"

// Topics builds the server's MQTT topic names.
//
//	topics := mqtt.Topics{}
//	topics.Control() // "fcserver/control"
type Topics struct{}

// Status is the retained online/offline status topic.
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// Control receives JSON control messages.
func (Topics) Control() string {
	return TopicPrefix + "/control"
}

// ControlReply carries replies to messages received on Control.
func (Topics) ControlReply() string {
	return TopicPrefix + "/control/reply"
}

// DeviceEvents carries device attach and detach notices.
func (Topics) DeviceEvents() string {
	return TopicPrefix + "/events/devices"
}
