// Package poller runs the relay's adaptive polling loop.
//
// Each cycle asks the job [Source] for a payload. A payload resets the
// interval to its base and is handed to the [Dispatcher]; no payload, or a
// job source failure, grows the interval by a multiplier up to a ceiling.
// The loop then sleeps for the current interval and repeats until stopped.
//
// The main components are:
//
//   - [Poller]: The loop with its Idle, Running, Stopping, Stopped lifecycle
//   - [Config]: Base and max interval plus backoff multiplier
//   - [NextInterval]: The backoff step as a pure function
//   - [CycleResult]: Outcome of one cycle, delivered to observers
//
// Failed dispatches are not retried locally. The job source keeps offering a
// job until it has been printed, so the next cycle retries it.
package poller
