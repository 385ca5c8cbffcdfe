package ordinals

// Tag identifies an envelope field. Unknown odd tags are ignored,
// unknown even tags make the inscription unbound.
type Tag uint8

const (
	TagBody    Tag = 0
	TagPointer Tag = 2
	// TagUnbound is even and never recognized.
	TagUnbound Tag = 66

	TagContentType     Tag = 1
	TagParent          Tag = 3
	TagMetadata        Tag = 5
	TagMetaprotocol    Tag = 7
	TagContentEncoding Tag = 9
	TagDelegate        Tag = 11
	// TagNop is odd and never recognized.
	TagNop Tag = 255
)

// IsChunked reports whether repeated values of the tag are concatenated.
func (t Tag) IsChunked() bool {
	return t == TagMetadata
}

// Bytes returns the push data of the tag. The body tag is an empty push.
func (t Tag) Bytes() []byte {
	if t == TagBody {
		return []byte{}
	}
	return []byte{byte(t)}
}
