package models

import "net/http"

// OutcomeKind enumerates resolution results
type OutcomeKind int

const (
	OutcomeServed OutcomeKind = iota
	OutcomeRedirect
	OutcomeNotFound
	OutcomeUnsupported
	OutcomeFailed
	OutcomeInvalid
	// OutcomeAbandoned means the caller went away before anything was sent
	OutcomeAbandoned
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeServed:
		return "served"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUnsupported:
		return "unsupported"
	case OutcomeFailed:
		return "failed"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Outcome is what the resolver hands back to the request layer
type Outcome struct {
	Kind     OutcomeKind
	Location string    // Redirect
	Artifact *Artifact // Served
	Reason   string    // NotFound, Unsupported, Failed, Invalid
	Fallback bool      // Redirect issued because resolution failed
}

func Served(a *Artifact) Outcome { return Outcome{Kind: OutcomeServed, Artifact: a} }

func Redirect(location string) Outcome { return Outcome{Kind: OutcomeRedirect, Location: location} }

func FallbackRedirect(location string) Outcome {
	return Outcome{Kind: OutcomeRedirect, Location: location, Fallback: true}
}

func NotFound(reason string) Outcome { return Outcome{Kind: OutcomeNotFound, Reason: reason} }

func Unsupported(reason string) Outcome { return Outcome{Kind: OutcomeUnsupported, Reason: reason} }

func Failed(reason string) Outcome { return Outcome{Kind: OutcomeFailed, Reason: reason} }

func Invalid(reason string) Outcome { return Outcome{Kind: OutcomeInvalid, Reason: reason} }

func Abandoned() Outcome { return Outcome{Kind: OutcomeAbandoned} }

// StatusCode maps an outcome to the HTTP status the audio API answers with
func (o Outcome) StatusCode() int {
	switch o.Kind {
	case OutcomeServed:
		return http.StatusOK
	case OutcomeRedirect:
		return http.StatusTemporaryRedirect
	case OutcomeNotFound, OutcomeInvalid, OutcomeFailed:
		return http.StatusBadRequest
	case OutcomeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
