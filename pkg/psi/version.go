package psi

var Version = "v0.0.0-in-progress"

// WireVersion is the protocol message format revision. Peers reject frames
// carrying any other value.
const WireVersion uint8 = 1

// WrapperVersion returns the semantic version populated at build time via
// ldflags. In development it defaults to v0.0.0-in-progress.
func WrapperVersion() string {
	return Version
}
