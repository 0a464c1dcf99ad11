// Package request implements the native side of a fetch: a Handle representing
// one in-flight file or network request.
//
// A Handle is owned by the file source that created it. It moves from
// StatePending to exactly one of StateCompleted or StateCancelled through a
// single compare-and-swap, so a cancellation racing a completion always
// resolves to one terminal state. The completion callback runs exactly once:
// with the fetched response if completion won, or with a cancellation notice
// if cancellation won. It never carries a success after Cancel has returned true.
package request
