package onboard

// PermissionState is the host platform's answer for one named device
// permission.
type PermissionState string

const (
	// PermissionGranted means the user has granted the permission.
	PermissionGranted PermissionState = "granted"
	// PermissionDenied means the user has denied the permission.
	PermissionDenied PermissionState = "denied"
	// PermissionUnknown means the platform has not been asked, or the
	// answer could not be determined.
	PermissionUnknown PermissionState = "unknown"
)

// PermissionSource exposes the host platform's permission state. Query
// returns a synchronous snapshot that may be stale; implementations must
// return PermissionUnknown when the state cannot be determined.
type PermissionSource interface {
	Query(name string) PermissionState
}

// PermissionReader is what skip predicates read permission state
// through: either a Permissions snapshot or a live adapter over a
// PermissionSource. Get must return PermissionUnknown for anything it
// cannot answer.
type PermissionReader interface {
	Get(name string) PermissionState
}

// Permissions is a point-in-time snapshot of permission states, read
// fresh on demand and never persisted.
type Permissions map[string]PermissionState

// Get returns the recorded state for name. Missing entries read as
// PermissionUnknown, the fail-safe default: skip predicates built on an
// unknown permission must prefer showing the step.
func (p Permissions) Get(name string) PermissionState {
	if s, ok := p[name]; ok {
		return s
	}
	return PermissionUnknown
}

// Snapshot reads every name from src into a fresh Permissions map.
// A nil src yields an empty snapshot (everything unknown).
func Snapshot(src PermissionSource, names ...string) Permissions {
	snap := make(Permissions, len(names))
	if src == nil {
		return snap
	}
	for _, n := range names {
		snap[n] = src.Query(n)
	}
	return snap
}

// Live adapts a PermissionSource into a PermissionReader that queries
// the platform on every Get, so skip predicates always see a fresh
// answer. A nil src reads everything as unknown.
func Live(src PermissionSource) PermissionReader {
	return liveReader{src: src}
}

type liveReader struct {
	src PermissionSource
}

func (l liveReader) Get(name string) PermissionState {
	if l.src == nil {
		return PermissionUnknown
	}
	return l.src.Query(name)
}

// StaticPermissions adapts a fixed map into a PermissionSource. Intended
// for tests and platforms where permission state is read once up front.
type StaticPermissions map[string]PermissionState

// Query implements PermissionSource.
func (s StaticPermissions) Query(name string) PermissionState {
	if st, ok := s[name]; ok {
		return st
	}
	return PermissionUnknown
}
