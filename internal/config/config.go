// Package config assembles the immutable, process-lifetime server
// configuration of spec §3 via functional options, the way
// nabbar-golib/httpserver groups its tunables into one options struct
// applied at construction time.
package config

import (
	"time"

	"github.com/abgandar/originhttpd/internal/dispatch"
	"github.com/abgandar/originhttpd/internal/reqbuf"
)

// Config is not modified once it is handed to server.New; every field is
// read-only for the lifetime of the server loop (spec §9: "an immutable
// configuration value held for the lifetime of the loop").
type Config struct {
	User         string // unprivileged user to drop to; empty disables privilege drop
	Chroot       string // optional chroot root; empty disables chroot
	Canonicalize bool   // passed to handlers that take it (DiskFile); the request parser canonicalizes every URL regardless of it

	ExtraHeaders string // server-global extra-headers string, verbatim "Key: Value\r\n..."

	IPv4 string
	IPv6 string
	Port int

	Limits   reqbuf.Limits
	MaxWBLen int64

	MaxConnGlobal int
	MaxConnPerIP  int
	IdleTimeout   time.Duration

	Rules []dispatch.Rule
}

// Option mutates a Config under construction.
type Option func(*Config)

// New assembles a Config from the given options, seeded with the defaults
// original_source/src/http-server-data.h ships (default_config).
func New(opts ...Option) *Config {
	c := &Config{
		Canonicalize:  true,
		IPv4:          "0.0.0.0",
		Port:          80,
		Limits:        reqbuf.Limits{MaxRequestLine: 64 * 1024, MaxHeaderBlock: 128 * 1024, MaxBody: 2 * 1024 * 1024},
		MaxWBLen:      10 * 1024 * 1024,
		MaxConnGlobal: 1024,
		MaxConnPerIP:  64,
		IdleTimeout:   60 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func WithUser(user string) Option         { return func(c *Config) { c.User = user } }
func WithChroot(root string) Option       { return func(c *Config) { c.Chroot = root } }
func WithCanonicalize(v bool) Option      { return func(c *Config) { c.Canonicalize = v } }
func WithExtraHeaders(h string) Option    { return func(c *Config) { c.ExtraHeaders = h } }
func WithIPv4(addr string) Option         { return func(c *Config) { c.IPv4 = addr } }
func WithIPv6(addr string) Option         { return func(c *Config) { c.IPv6 = addr } }
func WithPort(port int) Option            { return func(c *Config) { c.Port = port } }
func WithMaxRequestLine(n int) Option     { return func(c *Config) { c.Limits.MaxRequestLine = n } }
func WithMaxHeaderBlock(n int) Option     { return func(c *Config) { c.Limits.MaxHeaderBlock = n } }
func WithMaxBody(n int) Option            { return func(c *Config) { c.Limits.MaxBody = n } }
func WithMaxWBLen(n int64) Option         { return func(c *Config) { c.MaxWBLen = n } }
func WithMaxConnGlobal(n int) Option      { return func(c *Config) { c.MaxConnGlobal = n } }
func WithMaxConnPerIP(n int) Option       { return func(c *Config) { c.MaxConnPerIP = n } }
func WithIdleTimeout(d time.Duration) Option { return func(c *Config) { c.IdleTimeout = d } }
func WithRules(rules []dispatch.Rule) Option { return func(c *Config) { c.Rules = rules } }

// Validate enforces the constraints spec §6's CLI section implies
// (--maxconn integer ≥ 1, at least one bind address configured).
func (c *Config) Validate() error {
	if c.MaxConnGlobal < 1 {
		return errInvalidMaxConn
	}
	if c.IPv4 == "" && c.IPv6 == "" {
		return errNoBindAddress
	}
	return nil
}
