package accounts

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// Stored account layout:
//
//	lamports    u64 LE
//	owner       [32]byte
//	executable  u8
//	data_len    u32 LE
//	data        data_len bytes
const serializationHeaderSize = 8 + 32 + 1 + 4

// ErrInvalidAccountData is returned when stored account bytes are malformed.
var ErrInvalidAccountData = errors.New("invalid account data")

// SerializeAccount encodes an account for storage.
func SerializeAccount(account *types.Account) ([]byte, error) {
	if account == nil {
		return nil, errors.New("cannot serialize nil account")
	}

	buf := make([]byte, serializationHeaderSize+len(account.Data))
	binary.LittleEndian.PutUint64(buf[0:], uint64(account.Lamports))
	copy(buf[8:40], account.Owner[:])
	if account.Executable {
		buf[40] = 1
	}
	binary.LittleEndian.PutUint32(buf[41:], uint32(len(account.Data)))
	copy(buf[serializationHeaderSize:], account.Data)
	return buf, nil
}

// DeserializeAccount decodes an account produced by SerializeAccount.
func DeserializeAccount(data []byte) (*types.Account, error) {
	if len(data) < serializationHeaderSize {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d",
			ErrInvalidAccountData, serializationHeaderSize, len(data))
	}

	account := &types.Account{
		Lamports:   types.Lamports(binary.LittleEndian.Uint64(data[0:])),
		Executable: data[40] != 0,
	}
	copy(account.Owner[:], data[8:40])

	dataLen := int(binary.LittleEndian.Uint32(data[41:]))
	if len(data) != serializationHeaderSize+dataLen {
		return nil, fmt.Errorf("%w: data length %d does not match %d remaining bytes",
			ErrInvalidAccountData, dataLen, len(data)-serializationHeaderSize)
	}
	if dataLen > 0 {
		account.Data = make([]byte, dataLen)
		copy(account.Data, data[serializationHeaderSize:])
	}
	return account, nil
}
