// Package main hosts the aivp CLI entrypoint and command graph.
//
// Commands resolve configuration once through commandContext, call into the
// internal packages directly, and print results as indented JSON on stdout.
// Logs go to stderr and the configured log file. Lifecycle statuses and bus
// outcomes that are not failures of the command itself still map to distinct
// exit codes so scripts can branch on them.
package main
