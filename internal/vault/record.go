package vault

import "time"

// DefaultIdentifier names the record when the client holds one wallet.
const DefaultIdentifier = "default"

// Record is the only persisted form of a wallet secret.
type Record struct {
	Identifier string    `json:"identifier"`
	Ciphertext []byte    `json:"ciphertext"`
	IV         []byte    `json:"iv"`
	Salt       []byte    `json:"salt"`
	CreatedAt  time.Time `json:"created_at"`

	// Info is the non-secret connection metadata.
	Info Info `json:"info"`
}

func recordKey(id string) string {
	return "vault/" + id
}
