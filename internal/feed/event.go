package feed

// Event kinds the client knows how to render.
const (
	KindNote       = 1
	KindContacts   = 3
	KindReceipt    = 9735
	KindLongRead   = 30023
	KindLiveStream = 30311
)

// Event is one signed feed event as delivered by a source. The core never
// verifies signatures; that belongs to the transport.
type Event struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	Kind      int        `json:"kind"`
	CreatedAt int64      `json:"created_at"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig,omitempty"`
}

// Tag returns the first value of the first tag named name.
func (e Event) Tag(name string) (string, bool) {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}

// TagValues returns the first value of every tag named name.
func (e Event) TagValues(name string) []string {
	var out []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			out = append(out, t[1])
		}
	}
	return out
}
