package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http/httptrace"
	"net/url"
	"strings"
)

const unknownColo = "???"

// Server identifies the edge that answers download requests.
type Server struct {
	Colo    string
	Addr    string
	Headers map[string]string
}

// IP returns the edge address without its port.
func (s Server) IP() string {
	host, _, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return s.Addr
	}
	return host
}

// ServerInfo issues an empty download and collects the cf- headers.
func (c *Client) ServerInfo(ctx context.Context, measID string) (Server, error) {
	var srv Server
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Conn != nil {
				srv.Addr = info.Conn.RemoteAddr().String()
			}
		},
	}
	ctx = httptrace.WithClientTrace(ctx, trace)
	query := url.Values{"measId": {measID}, "bytes": {"0"}}
	resp, err := c.get(ctx, c.Endpoint(downPath, query))
	if err != nil {
		return Server{}, fmt.Errorf("server info: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	srv.Headers = make(map[string]string)
	for key, values := range resp.Header {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "cf-") && len(values) > 0 {
			srv.Headers[lower] = values[0]
		}
	}
	srv.Colo = srv.Headers["cf-meta-colo"]
	if srv.Colo == "" {
		srv.Colo = unknownColo
	}
	return srv, nil
}
