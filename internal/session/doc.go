// Package session implements the client-side session orchestrator: the
// component that owns an application's connection to a multi-host database
// cluster.
//
// # Architecture
//
//	            caller goroutines
//	     Connect/Execute/Close (non-blocking)
//	               │       │
//	               │       └────────▶ dispatch.Queue ──▶ workers (N goroutines)
//	               ▼                        ▲                   │
//	        event channel ◀─────────────────┼───────────────────┘
//	               │                        │        pool/worker reports
//	               ▼                        │
//	        session loop (1 goroutine) ─────┘
//	          owns: registry, policy wiring, pending
//	          counters, keyspace fan-out, timers
//	               ▲
//	               └── control connection (topology + up/down)
//
// One goroutine runs the session loop and is the only mutator of session
// state; it never blocks on I/O. Everything that happens elsewhere — worker
// pool outcomes, control-connection notifications, contact-point
// resolution, reconnect timer firings, the caller's connect/close commands
// — is delivered as an event on the single queue, so no error or state
// change ever crosses a goroutine boundary by any other channel.
//
// # Lifecycle
//
//	Initial ──▶ Connecting ──▶ Ready ──▶ Closing ──▶ Closed
//	                │                       ▲
//	                └──▶ ConnectFailed ─────┘
//
// Connect resolves contact points, establishes the control connection, and
// creates a pool on every worker for every known host. Three pending
// counters (resolve, pool, worker) act as countdown latches; when all
// reach zero the connect future resolves and the session is Ready. A
// control-connection failure fails the connect future and the session
// shuts itself down.
//
// Close stops intake, drains in-flight requests bounded by the shutdown
// timeout (stragglers are force-failed with ErrSessionClosing — never
// silently dropped), stops the workers, closes the control connection, and
// resolves the close future. The close future's wait joins the session's
// goroutines before returning, which is what makes it safe for the caller
// to drop the session afterwards: no late callback can observe it.
//
// # Request path
//
// Execute and Prepare run on the caller's goroutine: candidates from the
// load-balancing policy, a push onto the shared MPMC queue, and a wake of
// exactly one worker chosen round-robin. Per-request failures (queue full,
// no hosts available, host errors) surface only on that request's future
// and never affect session state.
//
// # Host lifecycle
//
// The registry is mutated only on the session loop. Topology snapshots
// from the control connection drive a generational mark/purge pass; host
// up/down notifications update the registry, the policy, and the workers,
// and downs arm a per-host exponential-backoff reconnect timer — bypassed
// entirely (zero delay) when the failure is critical.
package session
