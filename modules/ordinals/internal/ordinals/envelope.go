package ordinals

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/txscript"
	"github.com/hertarr/ordi/core/types"
	"github.com/samber/lo"
)

// EnvelopeKind tells well-formed envelopes from malformed ones.
type EnvelopeKind uint8

const (
	EnvelopeKindInscription EnvelopeKind = iota
	// EnvelopeKindMalformed envelopes still create an inscription, but a cursed one.
	EnvelopeKindMalformed
)

func (k EnvelopeKind) String() string {
	if k == EnvelopeKindMalformed {
		return "malformed"
	}
	return "inscription"
}

// Envelope is an `OP_FALSE OP_IF "ord" ... OP_ENDIF` sequence found in a tapscript.
type Envelope struct {
	Inscription Inscription
	InputIndex  uint32 // input containing the envelope
	Offset      int    // envelope position within the input

	PushNum               bool // payload has OP_1NEGATE..OP_16 pushes
	Stutter               bool // preceded by an aborted `OP_FALSE OP_FALSE OP_IF` start
	IncompleteField       bool // a field tag without a value
	DuplicateField        bool // a non-chunked tag appears more than once
	UnrecognizedEvenField bool // an unknown even tag
}

// Kind classifies the envelope.
func (e *Envelope) Kind() EnvelopeKind {
	if e.IncompleteField || e.DuplicateField || e.UnrecognizedEvenField {
		return EnvelopeKindMalformed
	}
	return EnvelopeKindInscription
}

var protocolId = []byte("ord")

// ParseEnvelopesFromTx returns every envelope of tx, by input then by position.
func ParseEnvelopesFromTx(tx *types.Transaction) []*Envelope {
	envelopes := make([]*Envelope, 0)
	for i, txIn := range tx.TxIn {
		script, ok := tapScript(txIn.Witness)
		if !ok {
			continue
		}
		envelopes = append(envelopes, parseTapScript(script, uint32(i))...)
	}
	return envelopes
}

// tapScript returns the leaf script of a script path spend.
func tapScript(witness [][]byte) ([]byte, bool) {
	if n := len(witness); n >= 2 && len(witness[n-1]) > 0 && witness[n-1][0] == txscript.TaprootAnnexTag {
		witness = witness[:n-1]
	}
	if len(witness) < 2 {
		return nil, false
	}
	return witness[len(witness)-2], true
}

type token struct {
	op   byte
	data []byte
}

// tokenize decodes script up to its end or its first malformed opcode.
func tokenize(script []byte) []token {
	tokens := make([]token, 0)
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		tokens = append(tokens, token{op: tokenizer.Opcode(), data: tokenizer.Data()})
	}
	return tokens
}

func parseTapScript(script []byte, inputIndex uint32) []*Envelope {
	envelopes := make([]*Envelope, 0)
	tokens := tokenize(script)

	var stuttered bool
	for i := 0; i < len(tokens); i++ {
		if tokens[i].op != txscript.OP_FALSE {
			continue
		}
		envelope, next, stutter := parseEnvelope(tokens, i+1, stuttered)
		if envelope == nil {
			stuttered = stutter
			continue
		}
		envelope.InputIndex = inputIndex
		envelope.Offset = len(envelopes)
		envelopes = append(envelopes, envelope)
		stuttered = false
		i = next - 1
	}
	return envelopes
}

// parseEnvelope reads an envelope starting right after its OP_FALSE at tokens[i].
// It returns the index following the envelope. When there is no envelope,
// stutter reports whether the token that broke the pattern is another OP_FALSE.
func parseEnvelope(tokens []token, i int, stuttered bool) (envelope *Envelope, next int, stutter bool) {
	isFalse := func(i int) bool { return i < len(tokens) && tokens[i].op == txscript.OP_FALSE }

	if i >= len(tokens) || tokens[i].op != txscript.OP_IF {
		return nil, i, isFalse(i)
	}
	i++
	if i >= len(tokens) || tokens[i].op > txscript.OP_PUSHDATA4 || !bytes.Equal(tokens[i].data, protocolId) {
		return nil, i, isFalse(i)
	}
	i++

	var pushNum bool
	payload := make([][]byte, 0)
	for ; i < len(tokens); i++ {
		op := tokens[i].op
		switch {
		case op == txscript.OP_ENDIF:
			return newEnvelope(payload, pushNum, stuttered), i + 1, false
		case op == txscript.OP_0:
			payload = append(payload, []byte{})
		case op == txscript.OP_1NEGATE:
			pushNum = true
			payload = append(payload, []byte{0x81})
		case isSmallInt(op):
			pushNum = true
			payload = append(payload, []byte{op - txscript.OP_1 + 1})
		case op <= txscript.OP_PUSHDATA4:
			payload = append(payload, tokens[i].data)
		default:
			// a non push opcode aborts the envelope
			return nil, i, false
		}
	}
	// missing OP_ENDIF
	return nil, i, false
}

func isSmallInt(op byte) bool {
	return op >= txscript.OP_1 && op <= txscript.OP_16
}

func newEnvelope(payload [][]byte, pushNum bool, stuttered bool) *Envelope {
	// the body starts after the first empty push at a tag position
	fieldPayloads, body := payload, []byte(nil)
	for i := 0; i < len(payload); i += 2 {
		if len(payload[i]) == 0 {
			fieldPayloads = payload[:i]
			body = lo.Flatten(payload[i+1:])
			break
		}
	}

	var incompleteField bool
	fields := make(fields)
	for _, chunk := range lo.Chunk(fieldPayloads, 2) {
		if len(chunk) != 2 {
			incompleteField = true
			break
		}
		// keyed on the whole push, a multi byte tag is never a known one
		tag := string(chunk[0])
		fields[tag] = append(fields[tag], chunk[1])
	}

	duplicateField := lo.SomeBy(lo.Values(fields), func(values [][]byte) bool {
		return len(values) > 1
	})

	contentEncoding := fields.take(TagContentEncoding)
	contentType := fields.take(TagContentType)
	delegate := fields.take(TagDelegate)
	metadata := fields.take(TagMetadata)
	metaprotocol := fields.take(TagMetaprotocol)
	parent := fields.take(TagParent)
	pointer := fields.take(TagPointer)

	// parity comes from the least significant byte
	unrecognizedEvenField := lo.SomeBy(lo.Keys(fields), func(tag string) bool {
		return tag[0]%2 == 0
	})

	return &Envelope{
		Inscription: Inscription{
			Content:         body,
			ContentEncoding: string(contentEncoding),
			ContentType:     string(contentType),
			Delegate:        parseInscriptionIdField(delegate),
			Metadata:        metadata,
			Metaprotocol:    string(metaprotocol),
			Parent:          parseInscriptionIdField(parent),
			Pointer:         parsePointerField(pointer),
		},
		PushNum:               pushNum,
		Stutter:               stuttered,
		IncompleteField:       incompleteField,
		DuplicateField:        duplicateField,
		UnrecognizedEvenField: unrecognizedEvenField,
	}
}

type fields map[string][][]byte

// take removes the value of tag. Chunked tags give all values concatenated.
func (f fields) take(tag Tag) []byte {
	key := string(tag.Bytes())
	values, ok := f[key]
	if !ok {
		return nil
	}
	if tag.IsChunked() {
		delete(f, key)
		return lo.Flatten(values)
	}
	if len(values) == 1 {
		delete(f, key)
	} else {
		f[key] = values[1:]
	}
	return values[0]
}

// parseInscriptionIdField decodes the binary id form: txid bytes then a little endian index
// with trailing zero bytes trimmed.
func parseInscriptionIdField(value []byte) *InscriptionId {
	if len(value) < 32 || len(value) > 36 {
		return nil
	}
	var id InscriptionId
	copy(id.TxHash[:], value[:32])
	var index [4]byte
	copy(index[:], value[32:])
	id.Index = binary.LittleEndian.Uint32(index[:])
	return &id
}

// parsePointerField decodes a little endian pointer, ignoring values that don't fit a uint64.
func parsePointerField(value []byte) *uint64 {
	if value == nil {
		return nil
	}
	if len(value) > 8 && lo.SomeBy(value[8:], func(b byte) bool { return b != 0 }) {
		return nil
	}
	var buf [8]byte
	copy(buf[:], value)
	return lo.ToPtr(binary.LittleEndian.Uint64(buf[:]))
}
