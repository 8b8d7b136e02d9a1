package cache

// cause names the failure taxonomy: every degradation maps to one of
// these and is handled identically at the public boundary.
type cause string

const (
	causeStorageUnavailable cause = "storage_unavailable"
	causeMalformedRecord    cause = "malformed_record"
	causeStaleRecord        cause = "stale_record"
)

// outcome records whether an internal operation succeeded or degraded
// to its safe default. Public methods expose only the default value;
// the outcome keeps the cause inspectable for logs and tests.
type outcome struct {
	degraded bool
	cause    cause
	err      error
}

func ok() outcome {
	return outcome{}
}

func failed(c cause, err error) outcome {
	return outcome{degraded: true, cause: c, err: err}
}
