// Package exq provides an execution queue for sandboxed validation jobs.
//
// Jobs are submitted with a priority class and an execution-environment
// parameter set. The queue keeps a bounded pool of long-lived worker
// processes, matches jobs to compatible workers, kills and respawns workers
// when the backlog needs a different environment and shares the pool
// between priority classes according to a fairness policy.
//
// End-users typically interact with the queue via the Service facade:
//
//	srv, _ := exq.New(exq.WithConfig(config))
//	_ = srv.Start(ctx)
//	id, _ := srv.StoreArtifact(ctx, codeHash, executorParams, code)
//	outcome, err := srv.Execute(ctx, &exq.ExecuteRequest{Artifact: id, ...})
//	_ = srv.Shutdown(ctx)
//
// See service/queue for the scheduling rules.
package exq
