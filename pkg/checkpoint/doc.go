// Package checkpoint stores resumable scrape progress per target.
//
// A checkpoint remembers which post URLs were opened and which usernames
// were already evaluated, so a re-run with resume enabled skips them.
// Files live under the platform data directory (XDG_DATA_HOME/igleads on
// Linux) unless a data directory is configured.
package checkpoint
