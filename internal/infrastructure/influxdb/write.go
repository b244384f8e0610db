package influxdb

import (
	"context"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/quartzlab/emqx-bridge/internal/device"
)

// OnDeviceEvent implements device.Sink by recording the lifecycle
// transition as a point in the device_events measurement.
//
// Tags carry the low-cardinality dimensions (event type, user, client);
// the source IP goes into a field so address churn does not explode the
// tag index.
func (c *Client) OnDeviceEvent(_ context.Context, event device.Event) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_events",
		map[string]string{
			"event":     string(event.Type),
			"user_id":   event.UserID,
			"client_id": event.ClientID,
		},
		map[string]interface{}{
			"ip": event.IP,
		},
		event.Time,
	)

	c.writeAPI.WritePoint(point)
}
