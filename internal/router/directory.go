// Package router defines the directory interface spec.md treats as an
// external collaborator ("the router directory that maps identity keys
// to peer records") plus an in-memory implementation sufficient to
// exercise the TLS handshake driver's peer-verification logic (§4.4)
// and the dispatcher's directory-eviction hook (§4.6, §9 Open Question d).
package router

import (
	"bytes"
	"sync"
)

// RouterInfo is the subset of a peer-router descriptor the connection
// subsystem needs once a relay peer is authenticated.
type RouterInfo struct {
	Nickname     string
	IdentityPKey []byte
	LinkPKey     []byte
	OnionPKey    []byte
	Addr         uint32
	Port         uint16
	Bandwidth    uint32
}

// Directory is the external router-directory surface (§6).
type Directory interface {
	GetByLinkPK(pk []byte) (*RouterInfo, bool)
	SetDirty()
	RetryConnections()
	Forget(addr uint32, port uint16)
}

// MemDirectory is a process-local, lock-protected Directory used by
// tests and by the reference cmd/relaylinkd entrypoint; a real relay
// would back this with consensus-downloaded router descriptors.
type MemDirectory struct {
	mu       sync.Mutex
	byLinkPK map[string]*RouterInfo
	dirty    bool
	forgot   []string // 6-byte big-endian addr+port keys, most recent last
	retries  int
}

// NewMemDirectory creates an empty in-memory directory.
func NewMemDirectory() *MemDirectory {
	return &MemDirectory{byLinkPK: make(map[string]*RouterInfo)}
}

// Add registers (or replaces) a known router by its link key.
func (d *MemDirectory) Add(info RouterInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byLinkPK[string(info.LinkPKey)] = &info
}

func (d *MemDirectory) GetByLinkPK(pk []byte) (*RouterInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.byLinkPK {
		if bytes.Equal([]byte(k), pk) {
			return v, true
		}
	}
	return nil, false
}

func (d *MemDirectory) SetDirty() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirty = true
}

// Dirty reports whether SetDirty has been called; nothing clears the flag.
func (d *MemDirectory) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

func (d *MemDirectory) RetryConnections() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retries++
}

// Retries reports how many times RetryConnections has been invoked.
func (d *MemDirectory) Retries() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retries
}

// Forget evicts addr:port as a directory source — the dispatcher calls
// this on a failed directory-fetch connection (§4.6, §7); unlike the
// original's "don't think it works" router_forget_router, this
// actually records the eviction so a caller's retry logic can skip it.
func (d *MemDirectory) Forget(addr uint32, port uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forgot = append(d.forgot, key(addr, port))
}

// Forgotten returns every addr:port evicted so far, most recent last.
func (d *MemDirectory) Forgotten() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.forgot))
	copy(out, d.forgot)
	return out
}

func key(addr uint32, port uint16) string {
	b := []byte{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr), byte(port >> 8), byte(port)}
	return string(b)
}
