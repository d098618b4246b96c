// Package apperr provides the error taxonomy shared by the gateway, the
// session store and the enrollment workflow.
//
// Every failure that can reach a user is an *Error with a Kind that decides
// how the command boundary reacts:
//
//   - KindAuth: bad credentials, missing or expired token. Re-login needed.
//   - KindValidation: client-side field checks. Never reaches the network.
//   - KindConflict: capacity exhausted, duplicate enrollment, already
//     attended. Shown as a specific notice, not retried.
//   - KindNetwork: generic transport or server failure. Safe to retry.
//
// # Usage
//
//	if avail.Available <= 0 {
//	    return apperr.Conflict(apperr.CodeNoCapacity, "no seats left").
//	        WithHint("Run 'listActivities --available' to see open activities")
//	}
package apperr
