package ordinals

// Inscription is the content carried by an envelope.
type Inscription struct {
	Content         []byte         `json:"content,omitempty"`
	ContentEncoding string         `json:"contentEncoding,omitempty"`
	ContentType     string         `json:"contentType,omitempty"`
	Delegate        *InscriptionId `json:"delegate,omitempty"`
	Metadata        []byte         `json:"metadata,omitempty"`
	Metaprotocol    string         `json:"metaprotocol,omitempty"`
	Parent          *InscriptionId `json:"parent,omitempty"`
	Pointer         *uint64        `json:"pointer,omitempty"`
}
