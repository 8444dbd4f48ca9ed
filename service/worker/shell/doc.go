// Package shell runs execute workers as local shell sessions. Every worker
// owns a persistent gosh session; jobs are dispatched to the worker program
// as commands and the last output line carries a JSON reply.
package shell
