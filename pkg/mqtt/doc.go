// Package mqtt provides an MQTT client that can reach a broker over a Unix
// domain socket, a serial line, or plain TCP.
//
// This package manages:
//   - Connection over unix_socket, serial_port, or tcp transports
//   - JSON message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Connection health monitoring
//
// # Architecture
//
// The tunnel daemon moves raw bytes and never speaks MQTT itself. This
// client exists for the endpoints of a tunnel: tooling and agents that talk
// to the broker through a tunnelled socket or a serial link. The non-TCP
// transports are composed in through paho's custom connection hook, backed
// by the transport package; the protocol loop stays entirely paho's.
//
// # Usage
//
//	client, err := mqtt.Connect(mqtt.Options{
//	    ClientID: "agent-01",
//	    Type:     mqtt.ConnectionUnixSocket,
//	    Address:  "/run/sockets/client_agent.sock",
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("system/#", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("system/ping", map[string]any{"seq": 1})
package mqtt
