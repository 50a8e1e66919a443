// Package layout holds the in-memory model of the layout's state.
//
// The model maps (kind, id) to the most recent attribute snapshot the feed
// delivered for that entity, plus the layout fast-clock. It is written by
// the automation engine as feed messages arrive and read concurrently by
// guard expressions, running scripts and the disconnect handler.
//
// Readers always receive deep copies, so a script can hold an Entity or a
// Snapshot for as long as it likes without observing later updates.
//
// Sixteen kinds are tracked, identified by their controller codes:
//
//	fb feedback   bk block     sw switch    sg signal
//	lc locomotive st route     co output    car car
//	operator      sc schedule  tour tour    location location
//	sb stage      tx text      booster      vr variable
package layout
