// Package timesource fetches wall-clock time used to resync the software
// clock.
package timesource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/beevik/ntp"

	"github.com/itohio/furball/pkg/config"
)

// Source returns the current wall-clock time.
type Source interface {
	Fetch(ctx context.Context) (time.Time, error)
}

var (
	_ Source = (*Daytime)(nil)
	_ Source = (*NTP)(nil)
	_ Source = System{}
)

// ErrMalformed is returned when a daytime response cannot be parsed.
var ErrMalformed = errors.New("malformed daytime response")

// New creates the source selected by cfg.
func New(cfg *config.TimeSourceConfig) (Source, error) {
	switch cfg.Kind {
	case config.TimeDaytime:
		return &Daytime{Address: cfg.Address, Timeout: cfg.Timeout}, nil
	case config.TimeNTP:
		return &NTP{Address: cfg.Address, Timeout: cfg.Timeout}, nil
	case config.TimeSystem:
		return System{}, nil
	default:
		return nil, fmt.Errorf("unknown time source %q", cfg.Kind)
	}
}

// Daytime queries a daytime protocol server (RFC 867) such as
// time.nist.gov:13.
type Daytime struct {
	Address string
	Timeout time.Duration
}

// Fetch connects, reads the server's lines and parses the first one that
// carries a timestamp.
func (d *Daytime) Fetch(ctx context.Context) (time.Time, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to connect to time server %s: %w", d.Address, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		return ParseDaytime(line)
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, fmt.Errorf("failed to read from time server %s: %w", d.Address, err)
	}
	return time.Time{}, fmt.Errorf("time server %s: %w", d.Address, ErrMalformed)
}

// ParseDaytime parses a NIST daytime line:
//
//	JJJJJ YY-MM-DD HH:MM:SS TT L H msADV UTC(NIST) OTM
//
// Only the date and time fields are used; the result is in UTC.
func ParseDaytime(line string) (time.Time, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	t, err := time.ParseInLocation("06-01-02 15:04:05", fields[1]+" "+fields[2], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return t, nil
}

// NTP queries an NTP server.
type NTP struct {
	Address string
	Timeout time.Duration
}

// Fetch queries the server and returns its time corrected for the round trip.
func (n *NTP) Fetch(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	resp, err := ntp.QueryWithOptions(n.Address, ntp.QueryOptions{Timeout: n.Timeout})
	if err != nil {
		return time.Time{}, fmt.Errorf("ntp query %s: %w", n.Address, err)
	}
	if err := resp.Validate(); err != nil {
		return time.Time{}, fmt.Errorf("ntp response from %s: %w", n.Address, err)
	}
	return time.Now().Add(resp.ClockOffset).UTC(), nil
}

// System uses the host's own clock.
type System struct{}

// Fetch returns the current host time in UTC.
func (System) Fetch(context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}
