package engine

import (
	"crypto/tls"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"relaylink/internal/config"
)

// zapErr is a nil-tolerant wrapper around zap.Error for the common
// "log this error if there is one" call sites.
func zapErr(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.Error(err)
}

func closeFD(fd int) error {
	return unix.Close(fd)
}

// serverTLSConfig builds the tls.Config an OR listener's accepted
// connections handshake with. spec.md leaves certificate provisioning
// to the outer process (§1: CLI/config parsing is out of scope); this
// reads whatever the engine was configured with, requesting — but not
// requiring — a client certificate so both relay peers and plain
// clients (OPs) can complete the handshake, matching §4.4's table.
func serverTLSConfig(cfg config.Config) *tls.Config {
	return &tls.Config{
		ClientAuth:         tls.RequestClientCert,
		InsecureSkipVerify: true, // peer identity is verified at the router-directory layer (§4.4), not by x509 chain validation
		MinVersion:         tls.VersionTLS12,
	}
}
