// Package connrec defines the polymorphic connection record shared by
// every connection kind the engine drives: listeners, relay links,
// application proxy links, exit links, directory links, and worker IPC.
package connrec

// Kind identifies the immutable role of a connection for its lifetime.
type Kind int

const (
	KindUnknown Kind = iota
	KindOrListener
	KindOr
	KindApListener
	KindAp
	KindExit
	KindDirListener
	KindDir
	KindDnsWorker
	KindCpuWorker
)

func (k Kind) String() string {
	switch k {
	case KindOrListener:
		return "or_listener"
	case KindOr:
		return "or"
	case KindApListener:
		return "ap_listener"
	case KindAp:
		return "ap"
	case KindExit:
		return "exit"
	case KindDirListener:
		return "dir_listener"
	case KindDir:
		return "dir"
	case KindDnsWorker:
		return "dns_worker"
	case KindCpuWorker:
		return "cpu_worker"
	default:
		return "unknown"
	}
}

// IsListener reports whether k is one of the three listener kinds.
func (k Kind) IsListener() bool {
	switch k {
	case KindOrListener, KindApListener, KindDirListener:
		return true
	default:
		return false
	}
}

// IsEdge reports whether k carries edge-stream fields (§3.2 invariant 4).
func (k Kind) IsEdge() bool {
	return k == KindAp || k == KindExit
}

// State is a kind-specific progression. The zero value is never a valid
// state for any constructed connection; constructors always set one of
// the named states below.
type State int

const (
	StateInvalid State = iota

	// Listener kinds only ever occupy this one state (§4.1).
	StateReady

	// OR connection states.
	StateConnecting
	StateHandshaking
	StateOpen

	// AP connection states.
	StateSocksWait
	StateAwaitingDestInfo
	StateWaitingForOrConn

	// Exit connection states.
	StateWaitingForDestInfo
	// StateConnecting and StateOpen are shared with OR above.

	// Dir connection states (client and server side).
	StateConnectingFetch
	StateConnectingUpload
	StateClientSendingFetch
	StateClientSendingUpload
	StateClientReadingFetch
	StateClientReadingUpload
	StateAwaitingCommand
	StateWriting

	// DNS/CPU worker states.
	StateIdle
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateSocksWait:
		return "socks_wait"
	case StateAwaitingDestInfo:
		return "awaiting_dest_info"
	case StateWaitingForOrConn:
		return "waiting_for_or_conn"
	case StateWaitingForDestInfo:
		return "waiting_for_dest_info"
	case StateConnectingFetch:
		return "connecting_fetch"
	case StateConnectingUpload:
		return "connecting_upload"
	case StateClientSendingFetch:
		return "client_sending_fetch"
	case StateClientSendingUpload:
		return "client_sending_upload"
	case StateClientReadingFetch:
		return "client_reading_fetch"
	case StateClientReadingUpload:
		return "client_reading_upload"
	case StateAwaitingCommand:
		return "awaiting_command"
	case StateWriting:
		return "writing"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	default:
		return "invalid"
	}
}

// validStates enumerates every state a kind may legally occupy. Checked
// by AssertOK and by the constructors; the DNSWORKER/CPUWORKER boundary
// is deliberately its own case (see SPEC_FULL.md F.3 — the original C
// source fell through DNSWORKER into the CPUWORKER range assertion).
var validStates = map[Kind]map[State]bool{
	KindOrListener:  {StateReady: true},
	KindApListener:  {StateReady: true},
	KindDirListener: {StateReady: true},
	KindOr: {
		StateConnecting: true, StateHandshaking: true, StateOpen: true,
	},
	KindAp: {
		StateSocksWait: true, StateAwaitingDestInfo: true,
		StateWaitingForOrConn: true, StateOpen: true,
	},
	KindExit: {
		StateWaitingForDestInfo: true, StateConnecting: true, StateOpen: true,
	},
	KindDir: {
		StateConnectingFetch: true, StateConnectingUpload: true,
		StateClientSendingFetch: true, StateClientSendingUpload: true,
		StateClientReadingFetch: true, StateClientReadingUpload: true,
		StateAwaitingCommand: true, StateWriting: true,
	},
	KindDnsWorker: {StateIdle: true, StateBusy: true},
	KindCpuWorker: {StateIdle: true, StateBusy: true},
}

// StateValidForKind reports whether state is one s is allowed to occupy.
func StateValidForKind(k Kind, s State) bool {
	m, ok := validStates[k]
	if !ok {
		return false
	}
	return m[s]
}
