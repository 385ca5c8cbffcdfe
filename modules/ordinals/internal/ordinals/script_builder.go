package ordinals

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/txscript"
)

// PushScriptBuilder builds scripts where every data push uses OP_DATA_*/OP_PUSHDATA*,
// never the small integer opcodes txscript.ScriptBuilder picks for canonical pushes.
// An empty push is still OP_0.
type PushScriptBuilder struct {
	script []byte
}

func NewPushScriptBuilder() *PushScriptBuilder {
	return &PushScriptBuilder{}
}

func (b *PushScriptBuilder) AddOp(opcode byte) *PushScriptBuilder {
	b.script = append(b.script, opcode)
	return b
}

func (b *PushScriptBuilder) AddData(data []byte) *PushScriptBuilder {
	n := len(data)
	switch {
	case n == 0:
		b.script = append(b.script, txscript.OP_0)
	case n < txscript.OP_PUSHDATA1:
		b.script = append(b.script, byte(txscript.OP_DATA_1-1+n))
	case n <= 0xff:
		b.script = append(b.script, txscript.OP_PUSHDATA1, byte(n))
	case n <= 0xffff:
		b.script = append(b.script, txscript.OP_PUSHDATA2)
		b.script = binary.LittleEndian.AppendUint16(b.script, uint16(n))
	default:
		b.script = append(b.script, txscript.OP_PUSHDATA4)
		b.script = binary.LittleEndian.AppendUint32(b.script, uint32(n))
	}
	b.script = append(b.script, data...)
	return b
}

// AddInscription appends a whole envelope: content type, optional pointer and body chunked in 520 byte pushes.
func (b *PushScriptBuilder) AddInscription(contentType string, body []byte, pointer *uint64) *PushScriptBuilder {
	b.AddOp(txscript.OP_FALSE).AddOp(txscript.OP_IF).AddData(protocolId)
	if contentType != "" {
		b.AddData(TagContentType.Bytes()).AddData([]byte(contentType))
	}
	if pointer != nil {
		b.AddData(TagPointer.Bytes()).AddData(binary.LittleEndian.AppendUint64(nil, *pointer))
	}
	if body != nil {
		b.AddData(TagBody.Bytes())
		for len(body) > 0 {
			n := min(len(body), txscript.MaxScriptElementSize)
			b.AddData(body[:n])
			body = body[n:]
		}
	}
	return b.AddOp(txscript.OP_ENDIF)
}

// Script returns the built script. It never fails and returns an error to match txscript.ScriptBuilder.
func (b *PushScriptBuilder) Script() ([]byte, error) {
	return b.script, nil
}
