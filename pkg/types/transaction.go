package types

import (
	"errors"
	"fmt"
)

// Transaction errors
var (
	ErrNoInstructions = errors.New("transaction has no instructions")
	ErrTooManyKeys    = errors.New("too many account keys")
)

// MaxAccountKeys is the maximum number of distinct keys a message may reference.
const MaxAccountKeys = 256

// Transaction represents a complete transaction with signatures.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

// Message represents a transaction message (the part that gets signed).
type Message struct {
	Header          MessageHeader
	AccountKeys     []Pubkey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// MessageHeader contains counts for account types.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction is an instruction with account indices.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndices []uint8
	Data           []byte
}

// Instruction is an expanded instruction with full account info.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// TransactionResult represents the result of executing a transaction.
type TransactionResult struct {
	Signature     Signature
	Success       bool
	Error         error
	Logs          []string
	ComputeUnits  ComputeUnits
	AccountDeltas []AccountDelta
}

// NewMessage compiles instructions into a message. Keys are ordered the way
// the runtime expects: the fee payer, writable signers, read-only signers,
// writable non-signers, then read-only non-signers. Flags for a key that
// appears more than once are merged.
func NewMessage(payer Pubkey, instructions []Instruction, recentBlockhash Hash) (*Message, error) {
	if len(instructions) == 0 {
		return nil, ErrNoInstructions
	}

	type keyFlags struct {
		signer   bool
		writable bool
	}
	order := []Pubkey{payer}
	flags := map[Pubkey]*keyFlags{payer: {signer: true, writable: true}}
	add := func(pk Pubkey, signer, writable bool) {
		f, ok := flags[pk]
		if !ok {
			f = &keyFlags{}
			flags[pk] = f
			order = append(order, pk)
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}
	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			add(meta.Pubkey, meta.IsSigner, meta.IsWritable)
		}
		add(ix.ProgramID, false, false)
	}
	if len(order) > MaxAccountKeys {
		return nil, fmt.Errorf("%w: %d", ErrTooManyKeys, len(order))
	}

	var writableSigners, readonlySigners, writableUnsigned, readonlyUnsigned []Pubkey
	for _, pk := range order {
		f := flags[pk]
		switch {
		case f.signer && f.writable:
			writableSigners = append(writableSigners, pk)
		case f.signer:
			readonlySigners = append(readonlySigners, pk)
		case f.writable:
			writableUnsigned = append(writableUnsigned, pk)
		default:
			readonlyUnsigned = append(readonlyUnsigned, pk)
		}
	}

	keys := make([]Pubkey, 0, len(order))
	keys = append(keys, writableSigners...)
	keys = append(keys, readonlySigners...)
	keys = append(keys, writableUnsigned...)
	keys = append(keys, readonlyUnsigned...)

	index := make(map[Pubkey]uint8, len(keys))
	for i, pk := range keys {
		index[pk] = uint8(i)
	}

	msg := &Message{
		Header: MessageHeader{
			NumRequiredSignatures:       uint8(len(writableSigners) + len(readonlySigners)),
			NumReadonlySignedAccounts:   uint8(len(readonlySigners)),
			NumReadonlyUnsignedAccounts: uint8(len(readonlyUnsigned)),
		},
		AccountKeys:     keys,
		RecentBlockhash: recentBlockhash,
		Instructions:    make([]CompiledInstruction, len(instructions)),
	}
	for i, ix := range instructions {
		indices := make([]uint8, len(ix.Accounts))
		for j, meta := range ix.Accounts {
			indices[j] = index[meta.Pubkey]
		}
		msg.Instructions[i] = CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			AccountIndices: indices,
			Data:           ix.Data,
		}
	}
	return msg, nil
}

// IsSigner reports whether the key at index i must sign.
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// IsWritable reports whether the key at index i is writable.
func (m *Message) IsWritable(i int) bool {
	numSigners := int(m.Header.NumRequiredSignatures)
	if i < numSigners {
		return i < numSigners-int(m.Header.NumReadonlySignedAccounts)
	}
	numUnsignedWritable := len(m.AccountKeys) - numSigners - int(m.Header.NumReadonlyUnsignedAccounts)
	return i-numSigners < numUnsignedWritable
}

// Signers returns the keys that must sign the message.
func (m *Message) Signers() []Pubkey {
	n := int(m.Header.NumRequiredSignatures)
	if n > len(m.AccountKeys) {
		n = len(m.AccountKeys)
	}
	return m.AccountKeys[:n]
}

// Decompile expands a compiled instruction back into full account metas.
func (m *Message) Decompile(compiled *CompiledInstruction) (*Instruction, error) {
	if int(compiled.ProgramIDIndex) >= len(m.AccountKeys) {
		return nil, fmt.Errorf("program ID index out of bounds: %d", compiled.ProgramIDIndex)
	}

	accounts := make([]AccountMeta, len(compiled.AccountIndices))
	for i, idx := range compiled.AccountIndices {
		if int(idx) >= len(m.AccountKeys) {
			return nil, fmt.Errorf("account index out of bounds: %d", idx)
		}
		accounts[i] = AccountMeta{
			Pubkey:     m.AccountKeys[idx],
			IsSigner:   m.IsSigner(int(idx)),
			IsWritable: m.IsWritable(int(idx)),
		}
	}

	return &Instruction{
		ProgramID: m.AccountKeys[compiled.ProgramIDIndex],
		Accounts:  accounts,
		Data:      compiled.Data,
	}, nil
}

// Serialize serializes the message for signing.
func (m *Message) Serialize() ([]byte, error) {
	buf := make([]byte, 0, 256)

	buf = append(buf, m.Header.NumRequiredSignatures)
	buf = append(buf, m.Header.NumReadonlySignedAccounts)
	buf = append(buf, m.Header.NumReadonlyUnsignedAccounts)

	buf = appendCompactU16(buf, len(m.AccountKeys))
	for _, key := range m.AccountKeys {
		buf = append(buf, key[:]...)
	}

	buf = append(buf, m.RecentBlockhash[:]...)

	buf = appendCompactU16(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)

		buf = appendCompactU16(buf, len(ix.AccountIndices))
		buf = append(buf, ix.AccountIndices...)

		buf = appendCompactU16(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}

	return buf, nil
}

// Serialize encodes the transaction in wire format: signatures followed by
// the serialized message.
func (tx *Transaction) Serialize() ([]byte, error) {
	msg, err := tx.Message.Serialize()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 1+len(tx.Signatures)*64+len(msg))
	buf = appendCompactU16(buf, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		buf = append(buf, sig[:]...)
	}
	return append(buf, msg...), nil
}

// appendCompactU16 appends a compact u16 encoding.
func appendCompactU16(buf []byte, val int) []byte {
	if val < 0x80 {
		return append(buf, byte(val))
	}
	if val < 0x4000 {
		return append(buf, byte(val&0x7f|0x80), byte(val>>7))
	}
	return append(buf, byte(val&0x7f|0x80), byte((val>>7)&0x7f|0x80), byte(val>>14))
}

// ParseCompactU16 parses a compact-u16 from a byte slice.
func ParseCompactU16(data []byte) (val uint16, bytesRead int, err error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("empty data")
	}

	b0 := data[0]
	if b0 < 0x80 {
		return uint16(b0), 1, nil
	}

	if len(data) < 2 {
		return 0, 0, fmt.Errorf("incomplete compact-u16")
	}
	b1 := data[1]
	if b1 < 0x80 {
		return uint16(b0&0x7f) | uint16(b1)<<7, 2, nil
	}

	if len(data) < 3 {
		return 0, 0, fmt.Errorf("incomplete compact-u16")
	}
	b2 := data[2]
	return uint16(b0&0x7f) | uint16(b1&0x7f)<<7 | uint16(b2)<<14, 3, nil
}

// DeserializeTransaction deserializes a transaction from wire format.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("transaction too short")
	}

	offset := 0

	numSigs, n, err := ParseCompactU16(data[offset:])
	if err != nil {
		return nil, fmt.Errorf("parse num signatures: %w", err)
	}
	offset += n

	sigs := make([]Signature, numSigs)
	for i := range sigs {
		if offset+64 > len(data) {
			return nil, fmt.Errorf("truncated signature %d", i)
		}
		copy(sigs[i][:], data[offset:offset+64])
		offset += 64
	}

	msg, err := deserializeMessage(data[offset:])
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	return &Transaction{
		Signatures: sigs,
		Message:    *msg,
	}, nil
}

func deserializeMessage(data []byte) (*Message, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("message too short")
	}

	offset := 0

	header := MessageHeader{
		NumRequiredSignatures:       data[0],
		NumReadonlySignedAccounts:   data[1],
		NumReadonlyUnsignedAccounts: data[2],
	}
	offset += 3

	numKeys, n, err := ParseCompactU16(data[offset:])
	if err != nil {
		return nil, fmt.Errorf("parse num account keys: %w", err)
	}
	offset += n

	keys := make([]Pubkey, numKeys)
	for i := range keys {
		if offset+32 > len(data) {
			return nil, fmt.Errorf("truncated account key %d", i)
		}
		copy(keys[i][:], data[offset:offset+32])
		offset += 32
	}

	if offset+32 > len(data) {
		return nil, fmt.Errorf("truncated blockhash")
	}
	var blockhash Hash
	copy(blockhash[:], data[offset:offset+32])
	offset += 32

	numIx, n, err := ParseCompactU16(data[offset:])
	if err != nil {
		return nil, fmt.Errorf("parse num instructions: %w", err)
	}
	offset += n

	instructions := make([]CompiledInstruction, numIx)
	for i := range instructions {
		ix, bytesRead, err := deserializeInstruction(data[offset:])
		if err != nil {
			return nil, fmt.Errorf("parse instruction %d: %w", i, err)
		}
		instructions[i] = *ix
		offset += bytesRead
	}

	return &Message{
		Header:          header,
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
		Instructions:    instructions,
	}, nil
}

func deserializeInstruction(data []byte) (*CompiledInstruction, int, error) {
	if len(data) < 1 {
		return nil, 0, fmt.Errorf("empty instruction")
	}
	programIDIndex := data[0]
	offset := 1

	numAccounts, n, err := ParseCompactU16(data[offset:])
	if err != nil {
		return nil, 0, fmt.Errorf("parse num accounts: %w", err)
	}
	offset += n

	if offset+int(numAccounts) > len(data) {
		return nil, 0, fmt.Errorf("truncated account indices")
	}
	accountIndices := make([]uint8, numAccounts)
	copy(accountIndices, data[offset:offset+int(numAccounts)])
	offset += int(numAccounts)

	dataLen, n, err := ParseCompactU16(data[offset:])
	if err != nil {
		return nil, 0, fmt.Errorf("parse data len: %w", err)
	}
	offset += n

	if offset+int(dataLen) > len(data) {
		return nil, 0, fmt.Errorf("truncated instruction data")
	}
	ixData := make([]byte, dataLen)
	copy(ixData, data[offset:offset+int(dataLen)])
	offset += int(dataLen)

	return &CompiledInstruction{
		ProgramIDIndex: programIDIndex,
		AccountIndices: accountIndices,
		Data:           ixData,
	}, offset, nil
}

// FeePayer returns the fee payer (first signer).
func (tx *Transaction) FeePayer() Pubkey {
	if len(tx.Message.AccountKeys) == 0 {
		return ZeroPubkey
	}
	return tx.Message.AccountKeys[0]
}

// ID returns the transaction signature (first signature).
func (tx *Transaction) ID() Signature {
	if len(tx.Signatures) == 0 {
		return ZeroSignature
	}
	return tx.Signatures[0]
}
