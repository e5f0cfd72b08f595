package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Trace is the parsed key=value body of the trace endpoint.
type Trace struct {
	IP      string
	Country string
	Colo    string
	Fields  map[string]string
}

// Trace fetches the client view of the service: public IP and country.
func (c *Client) Trace(ctx context.Context) (Trace, error) {
	resp, err := c.get(ctx, c.Endpoint(tracePath, nil))
	if err != nil {
		return Trace{}, fmt.Errorf("trace: %w", err)
	}
	defer resp.Body.Close()
	tr, err := ParseTrace(resp.Body)
	if err != nil {
		return Trace{}, fmt.Errorf("trace: %w", err)
	}
	return tr, nil
}

// ParseTrace reads key=value lines. A body without loc= is an error.
func ParseTrace(r io.Reader) (Trace, error) {
	tr := Trace{Fields: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || key == "" {
			continue
		}
		tr.Fields[key] = value
	}
	if err := scanner.Err(); err != nil {
		return Trace{}, err
	}
	tr.IP = tr.Fields["ip"]
	tr.Country = tr.Fields["loc"]
	tr.Colo = tr.Fields["colo"]
	if tr.Country == "" {
		return Trace{}, fmt.Errorf("%w: loc", ErrMissingField)
	}
	return tr, nil
}
