// Package tor routes Web API requests through a SOCKS5 proxy.
//
// A Client wraps a golang.org/x/net/proxy SOCKS5 dialer and hands out
// *http.Client values for the API gateway. The proxy is either one the user
// already runs (--proxy host:port) or a Tor daemon started in-process by
// EmbeddedTor through tornago (--tor).
package tor
