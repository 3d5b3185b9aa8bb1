package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTunnelSession records one finished tunnel session.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Satisfies the tunnel worker's Telemetry interface.
func (c *Client) WriteTunnelSession(slotID int, reason string, clientToBroker, brokerToClient uint64, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"tunnel_sessions",
		map[string]string{
			"slot":   strconv.Itoa(slotID),
			"reason": reason,
		},
		map[string]interface{}{
			"bytes_client_to_broker": int64(clientToBroker), //nolint:gosec // session byte counts fit in int64
			"bytes_broker_to_client": int64(brokerToClient), //nolint:gosec // session byte counts fit in int64
			"duration_seconds":       duration.Seconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// SessionClosed is the tunnel.Telemetry spelling of WriteTunnelSession.
func (c *Client) SessionClosed(slotID int, reason string, clientToBroker, brokerToClient uint64, duration time.Duration) {
	c.WriteTunnelSession(slotID, reason, clientToBroker, brokerToClient, duration)
}

// WriteRejection records a client socket turned away at the capacity cap.
func (c *Client) WriteRejection(socketName string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"tunnel_rejections",
		map[string]string{
			"socket": socketName,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
// Tags should stay low cardinality.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
