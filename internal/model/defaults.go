package model

// Shared defaults used by the decoders, the capture store and the server binary.
const (
	DefaultLogstore = "default"
	DefaultLevel    = "INFO"
)
