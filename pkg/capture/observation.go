package capture

// Observation is a single intercepted response, with the body fully buffered. The sink
// never retains an observation beyond the Handle call it was passed to.
type Observation struct {
	ID   string // optional flow identifier, used only to correlate logs
	URL  string // effective request URL, including scheme and host
	Body []byte
}
