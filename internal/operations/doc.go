// Package operations runs the churn pipeline: a registry of steps with
// dependencies, and a manager that executes them in dependency order.
//
// Core components:
//
// Manager: executes a planned set of steps sequentially. Each step gets a
// timeout and, for LMS transport failures, a bounded number of retries. A
// failed step marks its dependents skipped and, unless ContinueOnError is
// set, stops the run.
//
// Step: a single unit of work. ServiceStage adapts the step services of the
// other internal packages; ExtractStage wraps the LMS extraction.
//
// Registry: holds the steps and sorts them topologically, keeping
// registration order among independent steps.
//
// RunManifest: a JSON record of every run, with attempts, durations and
// the files each step produced.
//
// Example usage:
//
//	registry, err := operations.NewPipeline(env, &operations.StageOptions{LMS: client})
//	if err != nil {
//		return err
//	}
//	manager := operations.NewManager(registry, operations.FromRunConfig(cfg.Run), tracer, logger)
//	resp, err := manager.Execute(ctx, operations.OperationRequest{})
package operations
