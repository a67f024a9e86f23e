// Demultiplexes tapped HTTP responses into bucket files on disk. A proxy host hands each
// intercepted exchange to a Sink as an Observation, and the Sink evaluates it against a
// table of independent rule-groups. Every group that matches derives an identifier from the
// URL and writes the body to a file named after the rule's source tag and that identifier.
//
// Buckets are durable: overwrite buckets always hold the latest snapshot for an id, while
// append buckets accumulate newline separated payloads across process restarts.
package capture
