package mqtt

import (
	"errors"
	"testing"
	"time"
)

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{Address: "/run/sockets/a.sock"}.withDefaults()

	if o.Type != ConnectionUnixSocket {
		t.Errorf("Type = %q, want %q", o.Type, ConnectionUnixSocket)
	}
	if o.ReconnectInitialDelay != time.Second {
		t.Errorf("ReconnectInitialDelay = %v, want 1s", o.ReconnectInitialDelay)
	}
	if o.ReconnectMaxDelay != 60*time.Second {
		t.Errorf("ReconnectMaxDelay = %v, want 60s", o.ReconnectMaxDelay)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{
			name: "valid unix socket",
			opts: Options{Type: ConnectionUnixSocket, Address: "/run/sockets/a.sock"},
		},
		{
			name: "valid serial port",
			opts: Options{Type: ConnectionSerialPort, Address: "/dev/ttyUSB0", BaudRate: 9600},
		},
		{
			name: "valid tcp",
			opts: Options{Type: ConnectionTCP, Address: "127.0.0.1:1883"},
		},
		{
			name:    "missing address",
			opts:    Options{Type: ConnectionTCP},
			wantErr: ErrMissingAddress,
		},
		{
			name:    "unknown connection type",
			opts:    Options{Type: "carrier_pigeon", Address: "somewhere"},
			wantErr: ErrUnknownConnectionType,
		},
		{
			name:    "invalid qos",
			opts:    Options{Type: ConnectionTCP, Address: "127.0.0.1:1883", QoS: 3},
			wantErr: ErrInvalidQoS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.validate(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		opts Options
		want string
	}{
		{Options{Type: ConnectionUnixSocket, Address: "/run/sockets/a.sock"}, "unix:///run/sockets/a.sock"},
		{Options{Type: ConnectionSerialPort, Address: "/dev/ttyUSB0"}, "serial:///dev/ttyUSB0"},
		{Options{Type: ConnectionTCP, Address: "127.0.0.1:1883"}, "tcp://127.0.0.1:1883"},
	}

	for _, tt := range tests {
		if got := tt.opts.brokerURL(); got != tt.want {
			t.Errorf("brokerURL(%s) = %q, want %q", tt.opts.Type, got, tt.want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(Options{
		ClientID: "agent-01",
		Type:     ConnectionUnixSocket,
		Address:  "/run/sockets/a.sock",
		Username: "user",
		Password: "pass",
	}.withDefaults())

	if len(opts.Servers) != 1 {
		t.Fatalf("got %d servers, want 1", len(opts.Servers))
	}
	if opts.Servers[0].Scheme != "unix" || opts.Servers[0].Path != "/run/sockets/a.sock" {
		t.Errorf("server URL = %v", opts.Servers[0])
	}
	if opts.ClientID != "agent-01" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect not enabled")
	}
	if opts.CustomOpenConnectionFn == nil {
		t.Error("custom connection hook not set for unix socket")
	}

	tcp := buildClientOptions(Options{Type: ConnectionTCP, Address: "127.0.0.1:1883"}.withDefaults())
	if tcp.CustomOpenConnectionFn != nil {
		t.Error("tcp connections must use paho's own dialer")
	}
}

func TestConnectRejectsBadOptions(t *testing.T) {
	if _, err := Connect(Options{}); !errors.Is(err, ErrMissingAddress) {
		t.Errorf("Connect() error = %v, want ErrMissingAddress", err)
	}
	if _, err := Connect(Options{Type: "bogus", Address: "x"}); !errors.Is(err, ErrUnknownConnectionType) {
		t.Errorf("Connect() error = %v, want ErrUnknownConnectionType", err)
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.PublishBytes("", nil, 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.PublishBytes("t", nil, 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v, want ErrInvalidQoS", err)
	}
	if err := c.PublishBytes("t", make([]byte, maxPayloadSize+1), 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversize payload error = %v, want ErrPublishFailed", err)
	}
	if err := c.PublishBytes("t", []byte("x"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}

	// JSON-unmarshalable payloads fail before touching the connection.
	if err := c.Publish("t", make(chan int)); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("unmarshalable payload error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("t", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("t", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("t", 0, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if c.HasSubscription("t") {
		t.Error("HasSubscription() = true for failed subscribe")
	}
}
