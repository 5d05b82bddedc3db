package gateway

import (
	"fmt"

	"cryptoMonitor/internal/model"
)

// Kind classifies the result of one fetch.
type Kind int

const (
	KindSuccess Kind = iota
	KindRateLimited
	KindUpstreamError
	KindTransientFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstreamError:
		return "upstream_error"
	case KindTransientFailure:
		return "transient_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the classified response of one fetch. Records is only set for
// KindSuccess; Err is only set for KindTransientFailure.
type Outcome struct {
	Kind       Kind
	Records    []model.RawRecord
	StatusCode int
	Message    string
	Err        error
}

func success(records []model.RawRecord, statusCode int) Outcome {
	return Outcome{Kind: KindSuccess, Records: records, StatusCode: statusCode}
}

func rateLimited(statusCode int, message string) Outcome {
	return Outcome{Kind: KindRateLimited, StatusCode: statusCode, Message: message}
}

func upstreamError(statusCode int, message string) Outcome {
	return Outcome{Kind: KindUpstreamError, StatusCode: statusCode, Message: message}
}

func transientFailure(statusCode int, err error) Outcome {
	return Outcome{Kind: KindTransientFailure, StatusCode: statusCode, Message: err.Error(), Err: err}
}

// StatusError is a non-2xx response that carried no recognizable error payload.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}
