package rpc

import (
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"
)

// Encoding types
const (
	EncodingBase58     = "base58"
	EncodingBase64     = "base64"
	EncodingBase64Zstd = "base64+zstd"
)

// maxBase58Data is the largest account data returned as base58.
const maxBase58Data = 128

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeAccountData encodes account data in the specified encoding.
func EncodeAccountData(data []byte, encoding string) ([2]string, error) {
	switch encoding {
	case EncodingBase58:
		if len(data) > maxBase58Data {
			return [2]string{}, fmt.Errorf("data too large for base58 encoding, use base64")
		}
		return [2]string{base58.Encode(data), EncodingBase58}, nil

	case EncodingBase64, "":
		return [2]string{base64.StdEncoding.EncodeToString(data), EncodingBase64}, nil

	case EncodingBase64Zstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		return [2]string{base64.StdEncoding.EncodeToString(compressed), EncodingBase64Zstd}, nil

	default:
		return [2]string{}, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// DecodeAccountData decodes account data from the specified encoding.
func DecodeAccountData(encoded, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingBase58:
		return base58.Decode(encoded)

	case EncodingBase64, "":
		return base64.StdEncoding.DecodeString(encoded)

	case EncodingBase64Zstd:
		compressed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		return zstdDecoder.DecodeAll(compressed, nil)

	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// EncodeTransaction encodes wire transaction bytes for sendTransaction.
func EncodeTransaction(wire []byte, encoding string) (string, error) {
	switch encoding {
	case EncodingBase58:
		return base58.Encode(wire), nil
	case EncodingBase64, "":
		return base64.StdEncoding.EncodeToString(wire), nil
	default:
		return "", fmt.Errorf("unsupported transaction encoding: %s", encoding)
	}
}

// DecodeTransaction decodes the wire bytes of a sendTransaction argument.
func DecodeTransaction(encoded, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingBase58:
		return base58.Decode(encoded)
	case EncodingBase64, "":
		return base64.StdEncoding.DecodeString(encoded)
	default:
		return nil, fmt.Errorf("unsupported transaction encoding: %s", encoding)
	}
}

// SliceData returns a slice of data based on offset and length.
// Returns the full data if slice is nil.
func SliceData(data []byte, slice *DataSlice) []byte {
	if slice == nil {
		return data
	}
	n := uint64(len(data))
	if slice.Offset >= n {
		return []byte{}
	}
	return data[slice.Offset:min(slice.Offset+slice.Length, n)]
}

// FormatTokenAmount renders amount with decimals places.
func FormatTokenAmount(amount uint64, decimals uint8) string {
	if decimals == 0 {
		return new(big.Int).SetUint64(amount).String()
	}
	r := new(big.Rat).SetFrac(new(big.Int).SetUint64(amount), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	return r.FloatString(int(decimals))
}
