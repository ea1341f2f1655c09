// Package storage handles local files: the per-account cookie jars and the
// atomic write helpers shared with the checkpoint package.
//
// Every write goes through a temporary file and a rename, so a crash in the
// middle of a save leaves the previous file intact.
package storage
