package detect

// Logger receives printf-style trace lines from the detector and
// auto-connector. It mirrors the standard library's log.Printf
// signature so a host can pass log.Printf directly; the zero value
// (nil) is treated as the no-op logger, since this library never logs
// on its own initiative.
type Logger func(format string, args ...any)

func (l Logger) logf(format string, args ...any) {
	if l == nil {
		return
	}
	l(format, args...)
}
