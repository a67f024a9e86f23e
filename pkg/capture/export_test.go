package capture

// Exposed for tests of the lock table.
type PathLocks = pathLocks

var NewPathLocks = newPathLocks

func (l *pathLocks) Size() int { return l.size() }
