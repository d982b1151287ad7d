/*
Package app composes the application: it owns the logger, loads the analysis
definition through a config.Loader, wires the pipeline stages together, and
hands them to the executor.
*/
package app
