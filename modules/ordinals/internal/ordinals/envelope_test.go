package ordinals

import (
	"testing"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hertarr/ordi/core/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestParseEnvelopesFromTx(t *testing.T) {
	testParseWitness := func(t *testing.T, tapScript []byte, expected []*Envelope) {
		t.Helper()

		tx := &types.Transaction{
			Version: 2,
			TxIn: []*types.TxIn{{
				Witness: wire.TxWitness{tapScript, {}},
			}},
		}
		assert.Equal(t, expected, ParseEnvelopesFromTx(tx))
	}
	testEnvelope := func(t *testing.T, payload [][]byte, expected []*Envelope) {
		t.Helper()

		builder := NewPushScriptBuilder().
			AddOp(txscript.OP_FALSE).
			AddOp(txscript.OP_IF)
		for _, data := range payload {
			builder.AddData(data)
		}
		builder.AddOp(txscript.OP_ENDIF)
		testParseWitness(t, utils.Must(builder.Script()), expected)
	}

	t.Run("empty_witness", func(t *testing.T) {
		envelopes := ParseEnvelopesFromTx(&types.Transaction{
			TxIn: []*types.TxIn{{Witness: wire.TxWitness{}}},
		})
		assert.Empty(t, envelopes)
	})
	t.Run("ignore_key_path_spends", func(t *testing.T) {
		envelopes := ParseEnvelopesFromTx(&types.Transaction{
			TxIn: []*types.TxIn{{
				Witness: wire.TxWitness{
					utils.Must(NewPushScriptBuilder().AddInscription("", nil, nil).Script()),
				},
			}},
		})
		assert.Empty(t, envelopes)
	})
	t.Run("ignore_key_path_spends_with_annex", func(t *testing.T) {
		envelopes := ParseEnvelopesFromTx(&types.Transaction{
			TxIn: []*types.TxIn{{
				Witness: wire.TxWitness{
					utils.Must(NewPushScriptBuilder().AddInscription("", nil, nil).Script()),
					{txscript.TaprootAnnexTag},
				},
			}},
		})
		assert.Empty(t, envelopes)
	})
	t.Run("parse_from_tapscript", func(t *testing.T) {
		testEnvelope(t, [][]byte{protocolId}, []*Envelope{{}})
	})
	t.Run("ignore_unparsable_scripts", func(t *testing.T) {
		script := utils.Must(NewPushScriptBuilder().AddInscription("", nil, nil).Script())
		// OP_DATA_1 without its data byte
		script = append(script, txscript.OP_DATA_1)
		testParseWitness(t, script, []*Envelope{{}})
	})
	t.Run("with_content_type", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, TagContentType.Bytes(), []byte("text/plain;charset=utf-8"), TagBody.Bytes(), []byte("ord")},
			[]*Envelope{{
				Inscription: Inscription{Content: []byte("ord"), ContentType: "text/plain;charset=utf-8"},
			}},
		)
	})
	t.Run("with_unknown_odd_tag", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, TagNop.Bytes(), []byte("bar"), TagBody.Bytes(), []byte("ord")},
			[]*Envelope{{
				Inscription: Inscription{Content: []byte("ord")},
			}},
		)
	})
	t.Run("with_unknown_even_tag", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, TagUnbound.Bytes(), []byte("bar"), TagBody.Bytes(), []byte("ord")},
			[]*Envelope{{
				Inscription:           Inscription{Content: []byte("ord")},
				UnrecognizedEvenField: true,
			}},
		)
	})
	t.Run("multi_byte_odd_tag_is_unrecognized", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, {0x01, 0x00}, []byte("text/html"), TagContentType.Bytes(), []byte("text/plain"), TagBody.Bytes(), []byte("ord")},
			[]*Envelope{{
				Inscription: Inscription{Content: []byte("ord"), ContentType: "text/plain"},
			}},
		)
	})
	t.Run("multi_byte_even_tag_is_unrecognized", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, {0x02, 0x00}, {0x01}, TagBody.Bytes(), []byte("ord")},
			[]*Envelope{{
				Inscription:           Inscription{Content: []byte("ord")},
				UnrecognizedEvenField: true,
			}},
		)
	})
	t.Run("duplicate_field", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, TagNop.Bytes(), {}, TagNop.Bytes(), {}},
			[]*Envelope{{DuplicateField: true}},
		)
	})
	t.Run("incomplete_field", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, TagNop.Bytes()},
			[]*Envelope{{IncompleteField: true}},
		)
	})
	t.Run("body_in_multiple_pushes", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, TagBody.Bytes(), []byte("foo"), {}, []byte("bar")},
			[]*Envelope{{
				Inscription: Inscription{Content: []byte("foobar")},
			}},
		)
	})
	t.Run("body_in_zero_pushes", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, TagBody.Bytes()},
			[]*Envelope{{
				Inscription: Inscription{Content: []byte{}},
			}},
		)
	})
	t.Run("metadata_from_chunks", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, TagMetadata.Bytes(), {0xa2}, TagMetadata.Bytes(), {0x01, 0x02}},
			[]*Envelope{{
				Inscription:    Inscription{Metadata: []byte{0xa2, 0x01, 0x02}},
				DuplicateField: true,
			}},
		)
	})
	t.Run("pointer", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, TagPointer.Bytes(), {0x01, 0x02}},
			[]*Envelope{{
				Inscription: Inscription{Pointer: lo.ToPtr(uint64(0x0201))},
			}},
		)
	})
	t.Run("pointer_with_trailing_zeros", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, TagPointer.Bytes(), {0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
			[]*Envelope{{
				Inscription: Inscription{Pointer: lo.ToPtr(uint64(1))},
			}},
		)
	})
	t.Run("pointer_overflow_is_ignored", func(t *testing.T) {
		testEnvelope(t,
			[][]byte{protocolId, TagPointer.Bytes(), {0, 0, 0, 0, 0, 0, 0, 0, 1}},
			[]*Envelope{{}},
		)
	})
	t.Run("no_endif", func(t *testing.T) {
		testParseWitness(t,
			utils.Must(NewPushScriptBuilder().
				AddOp(txscript.OP_FALSE).
				AddOp(txscript.OP_IF).
				AddData(protocolId).
				Script()),
			[]*Envelope{},
		)
	})
	t.Run("wrong_protocol_identifier", func(t *testing.T) {
		testEnvelope(t, [][]byte{[]byte("foo")}, []*Envelope{})
	})
	t.Run("non_push_opcode_aborts", func(t *testing.T) {
		testParseWitness(t,
			utils.Must(NewPushScriptBuilder().
				AddOp(txscript.OP_FALSE).
				AddOp(txscript.OP_IF).
				AddData(protocolId).
				AddOp(txscript.OP_CHECKSIG).
				AddOp(txscript.OP_ENDIF).
				Script()),
			[]*Envelope{},
		)
	})
	t.Run("pushnum_opcodes", func(t *testing.T) {
		for op, expected := range map[byte][]byte{
			txscript.OP_1NEGATE: {0x81},
			txscript.OP_1:       {1},
			txscript.OP_10:      {10},
			txscript.OP_16:      {16},
		} {
			testParseWitness(t,
				utils.Must(NewPushScriptBuilder().
					AddOp(txscript.OP_FALSE).
					AddOp(txscript.OP_IF).
					AddData(protocolId).
					AddData(TagBody.Bytes()).
					AddOp(op).
					AddOp(txscript.OP_ENDIF).
					Script()),
				[]*Envelope{{
					Inscription: Inscription{Content: expected},
					PushNum:     true,
				}},
			)
		}
	})
	t.Run("multiple_envelopes_in_one_witness", func(t *testing.T) {
		testParseWitness(t,
			utils.Must(NewPushScriptBuilder().
				AddInscription("text/plain", []byte("foo"), nil).
				AddInscription("text/plain", []byte("bar"), nil).
				Script()),
			[]*Envelope{
				{Inscription: Inscription{Content: []byte("foo"), ContentType: "text/plain"}},
				{Inscription: Inscription{Content: []byte("bar"), ContentType: "text/plain"}, Offset: 1},
			},
		)
	})
	t.Run("extract_from_second_input", func(t *testing.T) {
		envelopes := ParseEnvelopesFromTx(&types.Transaction{
			TxIn: []*types.TxIn{
				{},
				{Witness: wire.TxWitness{
					utils.Must(NewPushScriptBuilder().AddInscription("text/plain", []byte("ord"), nil).Script()),
					{},
				}},
			},
		})
		assert.Equal(t, []*Envelope{{
			Inscription: Inscription{Content: []byte("ord"), ContentType: "text/plain"},
			InputIndex:  1,
		}}, envelopes)
	})
	t.Run("stuttering", func(t *testing.T) {
		testParseWitness(t,
			utils.Must(NewPushScriptBuilder().
				AddOp(txscript.OP_FALSE).
				AddOp(txscript.OP_FALSE).
				AddOp(txscript.OP_IF).
				AddData(protocolId).
				AddOp(txscript.OP_ENDIF).
				Script()),
			[]*Envelope{{Stutter: true}},
		)
		testParseWitness(t,
			utils.Must(NewPushScriptBuilder().
				AddOp(txscript.OP_FALSE).
				AddOp(txscript.OP_IF).
				AddOp(txscript.OP_FALSE).
				AddOp(txscript.OP_IF).
				AddOp(txscript.OP_FALSE).
				AddOp(txscript.OP_IF).
				AddData(protocolId).
				AddOp(txscript.OP_ENDIF).
				Script()),
			[]*Envelope{{Stutter: true}},
		)
		testParseWitness(t,
			utils.Must(NewPushScriptBuilder().
				AddOp(txscript.OP_FALSE).
				AddOp(txscript.OP_FALSE).
				AddOp(txscript.OP_AND).
				AddOp(txscript.OP_FALSE).
				AddOp(txscript.OP_IF).
				AddData(protocolId).
				AddOp(txscript.OP_ENDIF).
				Script()),
			[]*Envelope{{}},
		)
	})
}

func TestEnvelopeKind(t *testing.T) {
	assert.Equal(t, EnvelopeKindInscription, (&Envelope{PushNum: true, Stutter: true}).Kind())
	assert.Equal(t, EnvelopeKindMalformed, (&Envelope{IncompleteField: true}).Kind())
	assert.Equal(t, EnvelopeKindMalformed, (&Envelope{DuplicateField: true}).Kind())
	assert.Equal(t, EnvelopeKindMalformed, (&Envelope{UnrecognizedEvenField: true}).Kind())
}
