/*
Package executor runs the analysis pipeline. Stages declare the stages they
come after; the executor builds a DAG from those declarations, validates it,
and drains it with a fixed pool of workers. Independent stages (for example
the three dataset loads) run concurrently. The first failure cancels the
shared context and transitively skips every downstream stage, and Run reports
the root-cause error rather than the cancellation fallout.
*/
package executor
