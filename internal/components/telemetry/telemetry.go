package telemetry

import (
	"fmt"
)

// API is how components report what happens to them. Components never log
// directly, which lets tests assert on reports (see Recorder).
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that failed in a way someone should look at.
	//
	// `id` names the **component** that broke, not the line of code. A report found in a
	// log file weeks later should point at the component at fault. Details belong in params
	// or in the error itself (fmt.Errorf with %w).
	//
	// ex. a failed request in the dispatch fetcher is `client.fetch`, whether the cause was
	// a timeout or an unexpected status code.
	//
	// ids are lowercase, underscores separate words of a component and dashes separate words
	// of a method. Wrapping the API in a ScopedAPI adds the package, so `<type>.<method>` is
	// usually enough.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that is not broken yet but may be worth investigating.
	ReportWarning(id string, params ...any)

	// ReportDebug reports information only useful while debugging.
	ReportDebug(msg string, params ...any)

	// ReportCount reports a measurement taken at the current time, counts are data points
	// over time and are not meant to be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, like a sub-logger.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scoped(id string) string {
	return fmt.Sprintf("%s: %s", s.namespace, id)
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scoped(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scoped(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scoped(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scoped(id), count)
}
