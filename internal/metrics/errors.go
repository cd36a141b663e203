package metrics

import "strconv"

// RecordError records an error with code and status
func RecordError(errorCode string, httpStatus int) {
	m := installed()
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errorCode, strconv.Itoa(httpStatus)).Inc()
}

// RecordPanic records a panic recovery
func RecordPanic() {
	m := installed()
	if m == nil {
		return
	}
	m.panics.Inc()
}
