// Command newswatch is the operator CLI for the scan pipeline. It talks to
// the same SQLite database as newswatchd, so scan requests enqueued here are
// picked up by a running daemon.
package main
