package config

import "errors"

var (
	errInvalidMaxConn = errors.New("config: maxconn must be at least 1")
	errNoBindAddress  = errors.New("config: no IPv4 or IPv6 bind address configured")
)
