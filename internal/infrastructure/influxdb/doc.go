// Package influxdb ships tunnel telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with the patterns
// used across this codebase for connection management and health checks.
//
// # Purpose
//
// Time-series storage for:
//   - Per-session throughput (bytes relayed in each direction)
//   - Session close reasons and durations per slot
//   - Capacity rejections
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.Telemetry)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTunnelSession(3, "peer_closed", 1024, 2048, 90*time.Second)
//
// # Thread Safety
//
// All methods are safe for concurrent use; workers from many tunnels write
// through one client. Writes are non-blocking and batched, and batch errors
// surface through the SetOnError callback rather than at the write site.
//
// Telemetry is optional and best effort: a down InfluxDB never affects
// relaying.
package influxdb
