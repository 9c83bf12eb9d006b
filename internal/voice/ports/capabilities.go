package ports

// IDGenerator produces identifiers that stand in for values a real ledger or
// provider would assign. Tests inject deterministic generators.
type IDGenerator interface {
	NewID(prefix string) string
}

// HashProvider derives content hashes for fingerprints and transactions.
type HashProvider interface {
	Hash(data []byte) string
}
