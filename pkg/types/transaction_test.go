package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPubkey(seed string) Pubkey {
	return Pubkey(SHA256([]byte(seed)))
}

func TestNewMessage_KeyOrdering(t *testing.T) {
	payer := testPubkey("payer")
	signerRO := testPubkey("readonly-signer")
	writable := testPubkey("writable")
	readonly := testPubkey("readonly")
	program := testPubkey("program")

	ix := Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			Readonly(readonly),
			{Pubkey: signerRO, IsSigner: true},
			Writable(writable),
			{Pubkey: payer, IsSigner: true, IsWritable: true},
		},
		Data: []byte{1, 2, 3},
	}

	msg, err := NewMessage(payer, []Instruction{ix}, Hash(testPubkey("blockhash")))
	require.NoError(t, err)

	assert.Equal(t, []Pubkey{payer, signerRO, writable, readonly, program}, msg.AccountKeys)
	assert.Equal(t, MessageHeader{
		NumRequiredSignatures:       2,
		NumReadonlySignedAccounts:   1,
		NumReadonlyUnsignedAccounts: 2,
	}, msg.Header)

	assert.True(t, msg.IsSigner(0))
	assert.True(t, msg.IsWritable(0))
	assert.True(t, msg.IsSigner(1))
	assert.False(t, msg.IsWritable(1))
	assert.False(t, msg.IsSigner(2))
	assert.True(t, msg.IsWritable(2))
	assert.False(t, msg.IsWritable(3))
	assert.False(t, msg.IsWritable(4))

	decoded, err := msg.Decompile(&msg.Instructions[0])
	require.NoError(t, err)
	assert.Equal(t, program, decoded.ProgramID)
	assert.Equal(t, ix.Accounts, decoded.Accounts)
	assert.Equal(t, ix.Data, decoded.Data)
}

func TestNewMessage_MergesDuplicateFlags(t *testing.T) {
	payer := testPubkey("payer")
	shared := testPubkey("shared")
	program := testPubkey("program")

	msg, err := NewMessage(payer, []Instruction{
		{ProgramID: program, Accounts: []AccountMeta{Readonly(shared)}},
		{ProgramID: program, Accounts: []AccountMeta{Writable(shared)}},
	}, ZeroHash)
	require.NoError(t, err)

	require.Len(t, msg.AccountKeys, 3)
	assert.Equal(t, shared, msg.AccountKeys[1])
	assert.True(t, msg.IsWritable(1))
}

func TestNewMessage_NoInstructions(t *testing.T) {
	_, err := NewMessage(testPubkey("payer"), nil, ZeroHash)
	require.ErrorIs(t, err, ErrNoInstructions)
}

func TestTransactionWireFormat(t *testing.T) {
	payer := testPubkey("payer")
	msg, err := NewMessage(payer, []Instruction{{
		ProgramID: SystemProgramID,
		Accounts:  []AccountMeta{{Pubkey: payer, IsSigner: true, IsWritable: true}, Writable(testPubkey("to"))},
		Data:      make([]byte, 200),
	}}, Hash(testPubkey("blockhash")))
	require.NoError(t, err)

	tx := &Transaction{Signatures: []Signature{{1, 2, 3}}, Message: *msg}
	wire, err := tx.Serialize()
	require.NoError(t, err)

	decoded, err := DeserializeTransaction(wire)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures, decoded.Signatures)
	assert.Equal(t, tx.Message.AccountKeys, decoded.Message.AccountKeys)
	assert.Equal(t, tx.Message.RecentBlockhash, decoded.Message.RecentBlockhash)
	assert.Equal(t, tx.Message.Instructions[0].Data, decoded.Message.Instructions[0].Data)
	assert.Equal(t, tx.ID(), decoded.ID())
	assert.Equal(t, payer, decoded.FeePayer())

	_, err = DeserializeTransaction(wire[:len(wire)-10])
	require.Error(t, err)
}

func TestCompactU16(t *testing.T) {
	for _, v := range []int{0, 0x7f, 0x80, 0x3fff, 0x4000, 0xffff} {
		buf := appendCompactU16(nil, v)
		got, n, err := ParseCompactU16(buf)
		require.NoError(t, err)
		assert.Equal(t, uint16(v), got)
		assert.Equal(t, len(buf), n)
	}
}

func TestPubkeyText(t *testing.T) {
	text, err := TokenProgramID.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", string(text))

	var pk Pubkey
	require.NoError(t, pk.UnmarshalText(text))
	assert.Equal(t, TokenProgramID, pk)
	require.Error(t, pk.UnmarshalText([]byte("not-base58-0OIl")))
}

func TestRentExemptMinimum(t *testing.T) {
	assert.Equal(t, Lamports(128*3480*2), RentExemptMinimum(0))
	assert.Equal(t, Lamports((165+128)*3480*2), RentExemptMinimum(165))
}
