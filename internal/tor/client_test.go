package tor

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("valid proxy address creates client", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient("127.0.0.1:9050", 30*time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.ProxyAddress() != "127.0.0.1:9050" {
			t.Errorf("ProxyAddress() = %q, expected %q", client.ProxyAddress(), "127.0.0.1:9050")
		}
	})

	t.Run("invalid address returns ErrInvalidProxyAddress", func(t *testing.T) {
		t.Parallel()

		_, err := NewClient("127.0.0.1", 30*time.Second)
		if !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})
}

func TestIsValidProxyAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{name: "ipv4 with port", address: "127.0.0.1:9050", want: true},
		{name: "hostname with port", address: "localhost:9150", want: true},
		{name: "bracketed ipv6", address: "[::1]:9050", want: true},
		{name: "empty", address: "", want: false},
		{name: "no port", address: "127.0.0.1", want: false},
		{name: "empty host", address: ":9050", want: false},
		{name: "empty port", address: "127.0.0.1:", want: false},
		{name: "port zero", address: "127.0.0.1:0", want: false},
		{name: "port too large", address: "127.0.0.1:65536", want: false},
		{name: "non numeric port", address: "127.0.0.1:tor", want: false},
		{name: "unbracketed ipv6", address: "::1:9050", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := isValidProxyAddress(tt.address); got != tt.want {
				t.Errorf("isValidProxyAddress(%q) = %v, expected %v", tt.address, got, tt.want)
			}
		})
	}
}

func TestProxyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  ProxyStatus
		str     string
		wantErr error
	}{
		{ProxyStatusOK, "OK", nil},
		{ProxyStatusWrongType, "wrong type (not SOCKS5)", ErrProxyNotSOCKS5},
		{ProxyStatusCannotConnect, "cannot connect", ErrProxyCannotConnect},
		{ProxyStatusTimeout, "timeout", ErrProxyTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			t.Parallel()

			if got := tt.status.String(); got != tt.str {
				t.Errorf("String() = %q, expected %q", got, tt.str)
			}
			if got := tt.status.Error(); !errors.Is(got, tt.wantErr) || (tt.wantErr == nil && got != nil) {
				t.Errorf("Error() = %v, expected %v", got, tt.wantErr)
			}
		})
	}

	t.Run("unknown status", func(t *testing.T) {
		t.Parallel()

		s := ProxyStatus(99)
		if s.String() != "unknown" {
			t.Errorf("expected unknown, got %q", s.String())
		}
		if s.Error() == nil {
			t.Error("expected error for unknown status")
		}
	})
}

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	client, err := NewClient("127.0.0.1:9050", 20*time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	httpClient := client.NewHTTPClient()
	if httpClient.Timeout != 20*time.Second {
		t.Errorf("expected timeout 20s, got %v", httpClient.Timeout)
	}
	transport, ok := httpClient.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", httpClient.Transport)
	}
	if transport.TLSClientConfig != nil && transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("expected TLS verification to stay enabled")
	}
	if transport.DialContext == nil {
		t.Error("expected DialContext to route through the proxy")
	}
}

// startFakeProxy runs handle on every connection accepted by a local listener.
func startFakeProxy(t *testing.T, handle func(net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start mock server: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()
	return listener.Addr().String()
}

func TestCheckConnection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		handle func(net.Conn)
		want   ProxyStatus
	}{
		{
			name: "non-SOCKS5 server",
			handle: func(conn net.Conn) {
				buf := make([]byte, 3)
				_, _ = conn.Read(buf)
				_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
			},
			want: ProxyStatusWrongType,
		},
		{
			name: "SOCKS5 requiring auth",
			handle: func(conn net.Conn) {
				buf := make([]byte, 3)
				_, _ = conn.Read(buf)
				_, _ = conn.Write([]byte{0x05, 0xFF})
			},
			want: ProxyStatusWrongType,
		},
		{
			name: "SOCKS5 answering CONNECT with failure",
			handle: func(conn net.Conn) {
				buf := make([]byte, 3)
				_, _ = conn.Read(buf)
				_, _ = conn.Write([]byte{0x05, 0x00})
				req := make([]byte, 256)
				_, _ = conn.Read(req)
				_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
			},
			want: ProxyStatusOK,
		},
		{
			name: "wrong version in CONNECT response",
			handle: func(conn net.Conn) {
				buf := make([]byte, 3)
				_, _ = conn.Read(buf)
				_, _ = conn.Write([]byte{0x05, 0x00})
				req := make([]byte, 256)
				_, _ = conn.Read(req)
				_, _ = conn.Write([]byte{0x04, 0x00, 0x00, 0x01})
			},
			want: ProxyStatusWrongType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(startFakeProxy(t, tt.handle), 30*time.Second)
			if err != nil {
				t.Fatalf("failed to create client: %v", err)
			}
			if got := client.CheckConnection(context.Background()); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("nothing listening", func(t *testing.T) {
		t.Parallel()

		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatalf("failed to reserve port: %v", err)
		}
		addr := listener.Addr().String()
		listener.Close()

		client, err := NewClient(addr, 30*time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}
		if got := client.CheckConnection(context.Background()); got != ProxyStatusCannotConnect {
			t.Errorf("expected ProxyStatusCannotConnect, got %v", got)
		}
	})
}

// serveSOCKS5 is a minimal no-auth SOCKS5 CONNECT proxy for IPv4 targets.
func serveSOCKS5(conn net.Conn) {
	greeting := make([]byte, 3)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return
	}
	if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
		return
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil || header[3] != 0x01 {
		return
	}
	addr := make([]byte, 6)
	if _, err := io.ReadFull(conn, addr); err != nil {
		return
	}
	target := net.JoinHostPort(net.IP(addr[:4]).String(), strconv.Itoa(int(binary.BigEndian.Uint16(addr[4:]))))

	upstream, err := net.Dial("tcp", target) //nolint:noctx // test code
	if err != nil {
		_, _ = conn.Write([]byte{0x05, 0x05, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return
	}
	defer upstream.Close()
	if _, err := conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}

	go func() { _, _ = io.Copy(upstream, conn) }()
	_, _ = io.Copy(conn, upstream)
}

func TestHTTPClientThroughProxy(t *testing.T) {
	t.Parallel()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":{}}`))
	}))
	t.Cleanup(api.Close)

	client, err := NewClient(startFakeProxy(t, serveSOCKS5), 5*time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, api.URL, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := client.NewHTTPClient().Do(req)
	if err != nil {
		t.Fatalf("request through proxy failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if string(body) != `{"response":{}}` {
		t.Errorf("expected proxied body, got %q", body)
	}
}

func TestDialContextCancelled(t *testing.T) {
	t.Parallel()

	client, err := NewClient("127.0.0.1:9050", 30*time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.DialContext(ctx, "tcp", "api.steampowered.com:443"); err == nil {
		t.Error("expected error for cancelled context")
	}
}
