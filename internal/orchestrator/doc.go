// Package orchestrator drives the requirements pipeline.
//
// A Runner executes the phases in a fixed order against one result root:
//   - persona registry, use-case synthesis, task extraction and dedup
//   - user-story synthesis, typing, clustering, NF decomposition
//   - conflict identification, verification, and resolution per family
//   - analysis exports
//
// Every phase skips work whose outputs already exist, so an interrupted run
// resumes where it stopped. A phase that finds its prerequisites missing is
// logged and the run moves on; credential and store failures halt it.
//
// Example usage:
//
//	runner, err := orchestrator.New(opts)
//	report, err := runner.Run(ctx)
package orchestrator
