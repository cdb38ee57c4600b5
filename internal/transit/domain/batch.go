package domain

// MaxBatchItems is the per-call limit for batch transit operations.
const MaxBatchItems = 1000

// BatchEncryptItem is one plaintext in a batch encrypt call.
type BatchEncryptItem struct {
	Plaintext []byte
	Context   []byte
}

// BatchDecryptItem is one ciphertext in a batch decrypt call.
type BatchDecryptItem struct {
	Ciphertext string
	Context    []byte
}

// BatchRewrapItem is one ciphertext in a batch rewrap call.
type BatchRewrapItem struct {
	Ciphertext string
	Context    []byte
}

// BatchResult is the per-item outcome of a batch call. A batch is not
// transactional: each item succeeds or fails on its own.
type BatchResult struct {
	// Ciphertext is set for successful encrypt items.
	Ciphertext string
	// Plaintext is set for successful decrypt items.
	Plaintext []byte
	// Err is non-nil when the item failed.
	Err error
}

// DataKey is the result of envelope data-key generation: plaintext key
// material for immediate use and the same key wrapped under the named key.
// The caller owns zeroing Plaintext after use.
type DataKey struct {
	Plaintext  []byte
	Ciphertext string
}
