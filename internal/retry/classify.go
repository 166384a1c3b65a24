package retry

import "strings"

// Class is the retry classification of an error.
type Class int

const (
	// ClassTransient errors are retried with backoff.
	ClassTransient Class = iota
	// ClassPermanent errors short-circuit immediately.
	ClassPermanent
)

// transientMarkers are substrings of errors worth retrying: throttling,
// upstream overload, and network flakes.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"rate limit",
	"rate_limit",
	"too many requests",
	"429",
	"500",
	"502",
	"503",
	"504",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"overloaded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"no such host",
	"eof",
}

// permanentMarkers are substrings of errors that will never succeed on
// retry: bad credentials and malformed requests.
var permanentMarkers = []string{
	"invalid api key",
	"invalid_api_key",
	"authentication",
	"unauthorized",
	"401",
	"403",
	"400",
	"404",
	"invalid request",
	"context_length_exceeded",
}

// Classify inspects the stringified error. Permanent markers are checked
// first so "401 unauthorized after timeout retry" does not loop; anything
// unrecognized defaults to transient.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())

	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return ClassPermanent
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return ClassTransient
		}
	}
	return ClassTransient
}
