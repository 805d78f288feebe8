package accounts

import (
	"bytes"
	"sort"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// merkleArity is the number of children per node in the Merkle tree.
const merkleArity = 16

// ComputeAccountsHash computes a 16-ary Merkle root over the given accounts,
// sorted by pubkey. Empty accounts are skipped.
func ComputeAccountsHash(accounts []types.AccountRef) types.Hash {
	sorted := make([]types.AccountRef, 0, len(accounts))
	for _, ref := range accounts {
		if !ref.Account.IsEmpty() {
			sorted = append(sorted, ref)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Pubkey[:], sorted[j].Pubkey[:]) < 0
	})

	hashes := make([]types.Hash, len(sorted))
	for i, ref := range sorted {
		hashes[i] = ref.Account.Hash(ref.Pubkey)
	}
	return computeMerkleRoot(hashes)
}

// ComputeStateHash returns the Merkle root over every account in db.
// Two databases holding the same accounts produce the same hash.
func ComputeStateHash(db AccountsDB) (types.Hash, error) {
	var refs []types.AccountRef
	err := db.ForEach(func(pubkey types.Pubkey, account *types.Account) error {
		refs = append(refs, types.AccountRef{Pubkey: pubkey, Account: account})
		return nil
	})
	if err != nil {
		return types.ZeroHash, err
	}
	return ComputeAccountsHash(refs), nil
}

func computeMerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.ZeroHash
	}
	for len(hashes) > 1 {
		hashes = computeNextLevel(hashes)
	}
	return hashes[0]
}

func computeNextLevel(hashes []types.Hash) []types.Hash {
	parents := make([]types.Hash, 0, (len(hashes)+merkleArity-1)/merkleArity)
	for start := 0; start < len(hashes); start += merkleArity {
		end := min(start+merkleArity, len(hashes))
		parents = append(parents, hashChildren(hashes[start:end]))
	}
	return parents
}

// hashChildren hashes the concatenation of a node's children. A lone child
// is promoted unchanged.
func hashChildren(children []types.Hash) types.Hash {
	switch len(children) {
	case 0:
		return types.ZeroHash
	case 1:
		return children[0]
	}
	data := make([]byte, 0, len(children)*32)
	for _, child := range children {
		data = append(data, child[:]...)
	}
	return types.SHA256(data)
}
