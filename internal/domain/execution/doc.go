// Package execution implements the Execution Registry: the ordered collection
// of runs and the console messages each run produced.
//
// A run is opened by StartRun when code is submitted and only grows through
// Append calls that name it. Concurrent runs are legal; their output
// interleaves message by message in arrival order. The read view has two
// modes:
//   - all: every run's messages, runs in creation order
//   - lastOnly: only the newest run's messages
//
// Renderers consume View/ViewMode or Subscribe; they never mutate runs.
package execution
