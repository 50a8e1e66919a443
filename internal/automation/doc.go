// Package automation is the trigger/condition/action engine of Trackside Core.
//
// An automation is registered once with a trigger (a clock pattern such as
// "*/15:00" or an entity id glob such as "fb_*"), an optional guard
// expression, a watchdog timeout and a script. The Engine consumes inbound
// clock and entity updates strictly in arrival order:
//
//	clock message ──▶ trigger.Tracker ──tick──▶ Registry.MatchTime ─┐
//	                                                                ├─▶ guard ──▶ Scheduler.Submit
//	entity update ──▶ layout.Model.Apply ──▶ Registry.MatchEvent ───┘
//
// Matching and guard evaluation run synchronously on the caller. Scripts run
// on the Scheduler's bounded worker pool. When the queue is full, Submit
// blocks and the feed slows down; nothing is dropped.
//
// # Timeouts
//
// The per-registration timeout is a watchdog. When it fires, OnError is
// called with an error wrapping ErrTimeout and the script's context is
// cancelled, but the script is not preempted. If it later returns, the
// completion is logged and recorded as late; the callbacks are not called a
// second time.
//
// # Outcomes
//
// Every run produces a RunRecord that is delivered to each RunRecorder: the
// SQLite run history (SQLiteRunRepository), Prometheus (Metrics) and any
// caller-provided RunRecorderFunc.
//
// # Thread Safety
//
// All exported methods of Engine, Registry and Scheduler are safe for
// concurrent use.
package automation
