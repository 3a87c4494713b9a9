// Package api exposes accountsecurity.Service as a chi router mounted under /auth.
//
// Failed requests get {"code": ..., "message": ...} with a status derived from the error code.
package api
