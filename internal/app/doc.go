// Package app wires configuration, logging, metrics, tracing and the
// intrinsics pool into a Manager that creates sandbox contexts and tracks
// the live ones. Evaluations routed through the Manager share one rate
// limiter when a limit is configured.
//
// Example Usage:
//
//	manager, err := app.NewManager(config.LoadOrDefault(), log, nil)
//	if err != nil {
//	    return err
//	}
//	defer manager.Shutdown()
//	root, err := manager.Spawn(ctx, "", realm.KindRoot)
//	v, err := manager.Evaluate(ctx, root.ID().String(), "1 + 1", nil)
package app
