// Package errors provides structured error handling with error codes for shop-auth.
//
// Every failure returned by the account security service carries one ErrorCode. Callers switch on the
// code, never on the message:
//
//	if errors.IsCode(err, errors.ErrCodeAccountLocked) {
//		details := errors.GetDetails(err)
//		retry := details["retry_after_minutes"]
//	}
//
// Infrastructure failures (database, redis, signing) are wrapped with Unavailable. The wrapped cause
// is kept for server-side logging; PublicMessage never includes it.
//
// MapErrorCodeToHTTPStatus gives the stable HTTP status for each code.
package errors
