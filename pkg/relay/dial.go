package relay

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Dialer opens the relay target for a session. A nil Target with a nil error disables relaying.
type Dialer func(ctx context.Context) (Target, error)

// TCPDialer dials address on every call.
func TCPDialer(address string, timeout, writeTimeout time.Duration) Dialer {
	return func(ctx context.Context) (Target, error) {
		t, err := DialTCP(ctx, address, timeout)
		if err != nil {
			return nil, err
		}
		t.WriteTimeout = writeTimeout
		return t, nil
	}
}

// PTYDialer opens a fresh pseudo-terminal on every call.
func PTYDialer(link string, logger *logrus.Logger) Dialer {
	return func(context.Context) (Target, error) {
		t, err := OpenPTY(link, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// NoDialer disables relaying.
func NoDialer() Dialer {
	return func(context.Context) (Target, error) { return nil, nil }
}
