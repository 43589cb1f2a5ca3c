// Package session implements the driver's session orchestrator.
// This file defines the contact-point resolver collaborator.
package session

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// Resolver turns one configured contact point into resolved host:port
// addresses. The mechanics of name resolution are outside the session's
// scope; tests and embedders substitute their own implementation.
type Resolver interface {
	Resolve(ctx context.Context, contactPoint string) ([]string, error)
}

// netResolver is the default Resolver, backed by the process resolver.
type netResolver struct {
	defaultPort int
}

func (r netResolver) Resolve(ctx context.Context, contactPoint string) ([]string, error) {
	hostname, port, err := net.SplitHostPort(contactPoint)
	if err != nil {
		// No port in the contact point; use the configured default.
		hostname = contactPoint
		port = strconv.Itoa(r.defaultPort)
	}

	ips, err := net.DefaultResolver.LookupHost(ctx, hostname)
	if err != nil {
		return nil, errors.Wrapf(err, "session: resolving contact point %s", contactPoint)
	}

	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, net.JoinHostPort(ip, port))
	}
	return addrs, nil
}
