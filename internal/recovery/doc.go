// Package recovery implements the stock response to an unexpected loss of
// the layout state feed.
//
// When the connection monitor reports a disconnect that was not preceded by
// a shutdown notice, the Handler:
//
//  1. Exports the last known layout state
//  2. Stores the snapshot in SQLite and prunes old ones
//  3. Writes a JSON recovery file for the operator
//  4. Publishes an emergency notice listing moving locomotives
//
// Each step is independent: a failing step is logged and the remaining steps
// still run.
//
// Usage:
//
//	h := recovery.NewHandler(recovery.Config{StateFile: "emergency_state.json"},
//	    layout.NewSQLiteSnapshotRepository(db.DB), client, client.Topics().Emergency())
//	engine.SetDisconnectHandler(h.Handle)
package recovery
