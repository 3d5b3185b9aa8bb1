package mqtt

import (
	"context"
	"net"
	"net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/TristanIsrael/mqtt-tunnels/internal/transport"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for operation acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// defaultReconnectInitialDelay and defaultReconnectMaxDelay bound the
	// auto-reconnect backoff.
	defaultReconnectInitialDelay = time.Second
	defaultReconnectMaxDelay     = 60 * time.Second
)

// ConnectionType identifies how the client reaches the broker.
type ConnectionType string

const (
	// ConnectionUnixSocket connects through a Unix domain socket, typically
	// one end of a tunnel.
	ConnectionUnixSocket ConnectionType = "unix_socket"

	// ConnectionSerialPort connects through a serial line.
	ConnectionSerialPort ConnectionType = "serial_port"

	// ConnectionTCP connects over plain TCP. Mostly for debugging against a
	// broker's network listener.
	ConnectionTCP ConnectionType = "tcp"
)

// Options configures a client connection.
type Options struct {
	// ClientID identifies this client to the broker.
	ClientID string

	// Type selects the transport. Empty means unix_socket.
	Type ConnectionType

	// Address is the socket path (unix_socket), device path (serial_port),
	// or host:port (tcp). Required.
	Address string

	// BaudRate applies to serial_port connections. Zero means the transport
	// package default.
	BaudRate int

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// QoS is the default quality of service for Publish. 0, 1, or 2.
	QoS byte

	// ReconnectInitialDelay and ReconnectMaxDelay bound the auto-reconnect
	// backoff. Zero means the package defaults.
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
}

// withDefaults returns a copy with zero values filled in.
func (o Options) withDefaults() Options {
	if o.Type == "" {
		o.Type = ConnectionUnixSocket
	}
	if o.ReconnectInitialDelay <= 0 {
		o.ReconnectInitialDelay = defaultReconnectInitialDelay
	}
	if o.ReconnectMaxDelay <= 0 {
		o.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
	return o
}

// validate rejects configurations the client cannot act on.
func (o Options) validate() error {
	if o.Address == "" {
		return ErrMissingAddress
	}
	if o.QoS > maxQoS {
		return ErrInvalidQoS
	}
	switch o.Type {
	case ConnectionUnixSocket, ConnectionSerialPort, ConnectionTCP:
		return nil
	default:
		return ErrUnknownConnectionType
	}
}

// brokerURL renders the options as the URL paho expects. The scheme only
// matters for tcp; the other transports go through the custom connection
// hook and use the URL's path.
func (o Options) brokerURL() string {
	switch o.Type {
	case ConnectionSerialPort:
		return "serial://" + o.Address
	case ConnectionTCP:
		return "tcp://" + o.Address
	default:
		return "unix://" + o.Address
	}
}

// buildClientOptions creates paho MQTT options: transport, identification,
// credentials, and auto-reconnect with bounded backoff.
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.brokerURL())
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	// Start fresh on connect; subscription state lives in this client.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(o.ReconnectInitialDelay)
	opts.SetMaxReconnectInterval(o.ReconnectMaxDelay)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Non-TCP transports are composed in through paho's connection hook;
	// paho's protocol loop runs unchanged on top.
	switch o.Type {
	case ConnectionUnixSocket:
		opts.SetCustomOpenConnectionFn(func(uri *url.URL, _ pahomqtt.ClientOptions) (net.Conn, error) {
			return net.DialTimeout("unix", uri.Path, defaultConnectTimeout)
		})
	case ConnectionSerialPort:
		baud := o.BaudRate
		opts.SetCustomOpenConnectionFn(func(uri *url.URL, _ pahomqtt.ClientOptions) (net.Conn, error) {
			dialer := transport.SerialDialer{BaudRate: baud}
			conn, err := dialer.Dial(context.Background(), uri.Path)
			if err != nil {
				return nil, err
			}
			return conn.(*transport.SerialConn), nil
		})
	}

	return opts
}
