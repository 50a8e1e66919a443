// Package connection classifies the end of a state-feed session.
//
// The feed can end two ways. An orderly shutdown is announced first
// (OnShutdownSignal) and then the transport closes; nothing needs to happen.
// A crash or network failure closes the transport without warning, and the
// layout may still have trains moving with nobody watching, so the
// registered disconnect handler runs once with the last known state.
//
//	Connected ──shutdown signal──▶ ShuttingDown ──transport closed──▶ Disconnected
//	    │                                                              ▲
//	    └────────────transport closed (handler fires)──────────────────┘
//
// Reset starts a new session after a reconnect.
package connection
