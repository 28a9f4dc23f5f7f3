// Package errors provides the classified failure type surfaced by the engine
// boundary.
//
// # Overview
//
// Every failure mode of the request/response protocol funnels into one tagged
// type, Error, carrying an ErrorCode reason (spawn failure, conversion
// failure, timeout, handler failure, disposed-use) and an ErrorCategory for
// retry decisions. Callers never need to catch heterogeneous error types: a
// send either returns a typed response or an Error with a reason code.
//
// # Creating Errors
//
//	err := errors.New(errors.ErrCodeTimeout, "no response within deadline",
//	    errors.WithRequestID(req.ID.String()),
//	)
//
// # Checking Errors
//
//	if errors.IsTimeout(err) {
//	    // retry with a longer deadline
//	}
//	if engErr := errors.AsEngineError(err); engErr != nil {
//	    log.Warn("request failed", map[string]interface{}{"code": engErr.Code()})
//	}
//
// # Wire Transparency
//
// Error marshals to and from JSON, so a failure classified on the worker side
// of the execution-context boundary arrives on the manager side with its code,
// category, and metadata intact. Conversion failures additionally carry the
// offending raw payload for diagnosis.
package errors
