/*
Package events records audit events of profiles and other items in a partitioned document store
and answers the report queries built on them.

An Events instance is created from a connection string:

	ev, err := events.New("Endpoint=localhost:8080;Transport=tcp;MaximumExponentialRetries=5")

Every instance of the process shares one connection (see ConnectionManager). The connection is
a pipeline of handlers: the throttling handler retries rate limited requests with exponential
backoff, the concurrency handler classifies optimistic-concurrency conflicts as permanent and
the terminal handler talks to the store, either in process or over one of the rpc transports.

Events are partitioned by their group key "{itemType}-{itemId}". Save assigns a fresh
identifier and the group key before writing, so callers never set either.

The report queries (QueryProfileAudit, QueryLoginEvents) fail open by default: a store failure
is logged and an empty report returned. Use ReportFailureMode=closed in the connection string
or WithReportFailureMode to receive the error instead.
*/
package events
