package domain

import "errors"

// Error taxonomy shared by local persistence, remote backup and the API
var (
	// ErrStorageCorrupt marks malformed local or remote content. Callers recover
	// by falling back to empty state.
	ErrStorageCorrupt = errors.New("storage corrupt")
	// ErrAuthExpired marks a rejected or missing bearer credential
	ErrAuthExpired = errors.New("auth expired")
	// ErrNetworkFailure marks transient remote failures, timeouts and rate limits
	ErrNetworkFailure = errors.New("network failure")
	// ErrNotFound is the expected "nothing there yet" remote condition
	ErrNotFound = errors.New("not found")
	// ErrNoBackup means the remote side has no snapshot for this profile
	ErrNoBackup = errors.New("no backup exists")
	// ErrLocalPersistence marks a failed local write; the only class surfaced to users
	ErrLocalPersistence = errors.New("local persistence failed")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidRole          = errors.New("invalid message role")
	ErrNoSession            = errors.New("no active session")
	ErrInvalidIdentity      = errors.New("invalid identity token")
)

// ErrorKind names the taxonomy class of err for structured logs
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStorageCorrupt):
		return "StorageCorrupt"
	case errors.Is(err, ErrAuthExpired):
		return "AuthExpired"
	case errors.Is(err, ErrNoBackup):
		return "NoBackup"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrLocalPersistence):
		return "LocalPersistence"
	default:
		return "NetworkFailure"
	}
}
