package adapter

// IDGenerator produces unique, prefix-tagged identifiers.
type IDGenerator interface {
	NewID(prefix string) string
}
