package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementServer = "fcserver_server"
	MeasurementDevice = "fcserver_device"
)

// ServerSample holds the server-wide counters of one snapshot.
type ServerSample struct {
	PixelMessages   uint64
	ControlMessages uint64
	Devices         int
}

// DeviceSample holds the counters of one attached device.
type DeviceSample struct {
	Name   string
	Type   string
	Serial string

	Submitted      uint64
	BytesSubmitted uint64
	Completed      uint64
	BytesWritten   uint64
	SubmitErrors   uint64
	WriteErrors    uint64
	Pending        int
}

// Snapshot is everything written on one reporting tick.
type Snapshot struct {
	Server  ServerSample
	Devices []DeviceSample
}

// WritePoint queues a point. Points are dropped while disconnected.
func (c *Client) WritePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

// WriteSnapshot queues one server point and one point per device, all
// stamped with at.
func (c *Client) WriteSnapshot(s Snapshot, at time.Time) {
	for _, p := range snapshotPoints(s, at) {
		c.WritePoint(p)
	}
}

func snapshotPoints(s Snapshot, at time.Time) []*write.Point {
	points := make([]*write.Point, 0, 1+len(s.Devices))
	points = append(points, serverPoint(s.Server, at))
	for _, d := range s.Devices {
		points = append(points, devicePoint(d, at))
	}
	return points
}

func serverPoint(s ServerSample, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementServer,
		nil,
		map[string]interface{}{
			"pixel_messages":   s.PixelMessages,
			"control_messages": s.ControlMessages,
			"devices":          s.Devices,
		},
		at,
	)
}

func devicePoint(d DeviceSample, at time.Time) *write.Point {
	tags := map[string]string{
		"type":   d.Type,
		"serial": d.Serial,
	}
	if d.Name != "" {
		tags["name"] = d.Name
	}
	return write.NewPoint(
		MeasurementDevice,
		tags,
		map[string]interface{}{
			"submitted":       d.Submitted,
			"bytes_submitted": d.BytesSubmitted,
			"completed":       d.Completed,
			"bytes_written":   d.BytesWritten,
			"submit_errors":   d.SubmitErrors,
			"write_errors":    d.WriteErrors,
			"pending":         d.Pending,
		},
		at,
	)
}
