// Package logtail reads the end of flowreader's JSON log file and renders
// entries as single lines for the logs command.
//
// Read keeps only the last N lines in a ring buffer, so large log files are
// scanned once without being held in memory. Lines that are not JSON, such as
// output from an older console-format log, are passed through untouched.
package logtail
