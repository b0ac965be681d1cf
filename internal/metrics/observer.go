package metrics

// DispatchObserver records the outcome of scheduled dispatch, recovery and
// retry runs.
type DispatchObserver interface {
	RecordDispatch(loop string, success, failed int)
	RecordRecovery(success, failed int)
	RecordRetry(loop string, succeeded, failed, iterations int)
}

// HubObserver tracks dashboard watcher connections and pushed events.
type HubObserver interface {
	IncOnline()
	DecOnline()
	RecordPush()
}
