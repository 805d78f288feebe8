package staker

import (
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/svm/programs/token"
	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// Account positions of Initialize.
const (
	initAdmin = iota
	initSystemProgram
	initTokenProgram
	initRent
	initStakeMint
	initMintAuthority
	initPositionMint
	initPool
	initVaultAuthority
	initVault
	initAccountCount
)

func handleInitialize(ctx *syscall.ExecutionContext, args *InitializeArgs) error {
	accs, err := instructionAccounts(ctx, initAccountCount)
	if err != nil {
		return err
	}
	admin := accs[initAdmin]
	stakeMint := accs[initStakeMint]
	pool := accs[initPool]
	posMint := accs[initPositionMint]
	vault := accs[initVault]
	vaultAuth := accs[initVaultAuthority]
	mintAuth := accs[initMintAuthority]

	if err := expectSigner(admin, "admin"); err != nil {
		return err
	}
	if err := expectPrograms(accs[initSystemProgram], accs[initTokenProgram], accs[initRent]); err != nil {
		return err
	}

	for _, d := range []struct {
		name  string
		seeds [][]byte
		bump  uint8
		acc   *syscall.AccountInfo
	}{
		{"pool record", PoolSeeds(stakeMint.Pubkey), args.PoolBump, pool},
		{"vault", VaultSeeds(pool.Pubkey), args.VaultBump, vault},
		{"vault authority", VaultAuthoritySeeds(), args.VaultAuthBump, vaultAuth},
		{"mint authority", MintAuthoritySeeds(), args.MintAuthBump, mintAuth},
		{"position mint", PositionMintSeeds(pool.Pubkey), args.PosMintBump, posMint},
	} {
		if err := deriveWithBump(ctx, d.name, d.seeds, d.bump, d.acc.Pubkey); err != nil {
			return err
		}
	}

	stake, err := loadMint(stakeMint, "stake mint")
	if err != nil {
		return err
	}
	for _, acc := range []*syscall.AccountInfo{pool, posMint, vault} {
		if occupied(acc) {
			return fmt.Errorf("%w: %s", ErrAccountAlreadyInitialized, acc.Pubkey)
		}
	}

	poolSeeds := syscall.WithBump(PoolSeeds(stakeMint.Pubkey), args.PoolBump)
	if err := createAt(ctx, admin.Pubkey, pool, PoolStateSize, ProgramID, poolSeeds); err != nil {
		return err
	}

	posMintSeeds := syscall.WithBump(PositionMintSeeds(pool.Pubkey), args.PosMintBump)
	if err := createAt(ctx, admin.Pubkey, posMint, token.MintSize, types.TokenProgramID, posMintSeeds); err != nil {
		return err
	}
	if err := invoke(ctx, token.InitializeMint(posMint.Pubkey, stake.Decimals, mintAuth.Pubkey, nil)); err != nil {
		return err
	}

	vaultSeeds := syscall.WithBump(VaultSeeds(pool.Pubkey), args.VaultBump)
	if err := createAt(ctx, admin.Pubkey, vault, token.TokenAccountSize, types.TokenProgramID, vaultSeeds); err != nil {
		return err
	}
	if err := invoke(ctx, token.InitializeAccount(vault.Pubkey, stakeMint.Pubkey, vaultAuth.Pubkey)); err != nil {
		return err
	}

	state := &PoolState{
		Admin:         admin.Pubkey,
		StakeMint:     stakeMint.Pubkey,
		PosMint:       posMint.Pubkey,
		Vault:         vault.Pubkey,
		Bump:          args.PoolBump,
		VaultBump:     args.VaultBump,
		VaultAuthBump: args.VaultAuthBump,
		MintAuthBump:  args.MintAuthBump,
		PosMintBump:   args.PosMintBump,
	}
	pool.Data = state.Serialize()
	ctx.Log("Initialized pool %s for %s", pool.Pubkey, stakeMint.Pubkey)
	return nil
}

// Account positions of RegisterStake.
const (
	regPool = iota
	regUser
	regStakeMint
	regUserStake
	regPositionMint
	regUserPosition
	regSystemProgram
	regTokenProgram
	regRent
	regAccountCount
)

func handleRegisterStake(ctx *syscall.ExecutionContext, args *RegisterStakeArgs) error {
	accs, err := instructionAccounts(ctx, regAccountCount)
	if err != nil {
		return err
	}
	user := accs[regUser]
	userStake := accs[regUserStake]
	userPos := accs[regUserPosition]

	if err := expectSigner(user, "user"); err != nil {
		return err
	}
	if err := expectPrograms(accs[regSystemProgram], accs[regTokenProgram], accs[regRent]); err != nil {
		return err
	}
	pool, err := loadPool(ctx, accs[regPool])
	if err != nil {
		return err
	}
	if err := checkMints(pool, accs[regStakeMint], accs[regPositionMint]); err != nil {
		return err
	}

	if err := deriveWithBump(ctx, "user stake holding", UserStakeSeeds(pool.StakeMint, user.Pubkey), args.StakeAccountBump, userStake.Pubkey); err != nil {
		return err
	}
	if err := deriveWithBump(ctx, "user position holding", UserPositionSeeds(pool.PosMint, user.Pubkey), args.PosAccountBump, userPos.Pubkey); err != nil {
		return err
	}
	for _, acc := range []*syscall.AccountInfo{userStake, userPos} {
		if occupied(acc) {
			return fmt.Errorf("%w: %s", ErrAccountAlreadyInitialized, acc.Pubkey)
		}
	}

	for _, h := range []struct {
		acc   *syscall.AccountInfo
		mint  types.Pubkey
		seeds [][]byte
	}{
		{userStake, pool.StakeMint, syscall.WithBump(UserStakeSeeds(pool.StakeMint, user.Pubkey), args.StakeAccountBump)},
		{userPos, pool.PosMint, syscall.WithBump(UserPositionSeeds(pool.PosMint, user.Pubkey), args.PosAccountBump)},
	} {
		if err := createAt(ctx, user.Pubkey, h.acc, token.TokenAccountSize, types.TokenProgramID, h.seeds); err != nil {
			return err
		}
		if err := invoke(ctx, token.InitializeAccount(h.acc.Pubkey, h.mint, user.Pubkey)); err != nil {
			return err
		}
	}
	ctx.Log("Registered %s", user.Pubkey)
	return nil
}

// Account positions of Stake and Unstake. The authority is the mint
// authority for Stake and the vault authority for Unstake.
const (
	movPool = iota
	movUser
	movStakeMint
	movUserStake
	movPositionMint
	movUserPosition
	movVault
	movAuthority
	movTokenProgram
	movAccountCount
)

// movement is a validated Stake or Unstake account set.
type movement struct {
	pool      *PoolState
	accs      accountList
	userStake *token.TokenAccount
	userPos   *token.TokenAccount
}

func (m *movement) key(i int) types.Pubkey {
	return m.accs[i].Pubkey
}

func (m *movement) event(kind string, amount uint64) *Event {
	return &Event{Kind: kind, Pool: m.key(movPool), StakeMint: m.pool.StakeMint, User: m.key(movUser), Amount: amount}
}

func loadMovement(ctx *syscall.ExecutionContext, amount uint64) (*movement, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	accs, err := instructionAccounts(ctx, movAccountCount)
	if err != nil {
		return nil, err
	}
	user := accs[movUser]
	if err := expectSigner(user, "user"); err != nil {
		return nil, err
	}
	if err := expectKey(accs[movTokenProgram], types.TokenProgramID, "token program", ErrAccountMismatch); err != nil {
		return nil, err
	}
	pool, err := loadPool(ctx, accs[movPool])
	if err != nil {
		return nil, err
	}
	if err := checkMints(pool, accs[movStakeMint], accs[movPositionMint]); err != nil {
		return nil, err
	}
	if err := expectKey(accs[movVault], pool.Vault, "vault", ErrVaultMismatch); err != nil {
		return nil, err
	}
	if err := matchesStored(ctx, "vault", VaultSeeds(accs[movPool].Pubkey), pool.VaultBump, accs[movVault].Pubkey, ErrVaultMismatch); err != nil {
		return nil, err
	}

	m := &movement{pool: pool, accs: accs}
	if m.userStake, err = loadHolding(accs[movUserStake], "user stake holding", pool.StakeMint, user.Pubkey, ErrStakeMintMismatch, ErrStakeOwnerMismatch); err != nil {
		return nil, err
	}
	if m.userPos, err = loadHolding(accs[movUserPosition], "user position holding", pool.PosMint, user.Pubkey, ErrPosMintMismatch, ErrPosOwnerMismatch); err != nil {
		return nil, err
	}
	return m, nil
}

func handleStake(ctx *syscall.ExecutionContext, args *StakeArgs) error {
	m, err := loadMovement(ctx, args.Amount)
	if err != nil {
		return err
	}
	if err := matchesStored(ctx, "mint authority", MintAuthoritySeeds(), m.pool.MintAuthBump, m.key(movAuthority), ErrAccountMismatch); err != nil {
		return err
	}
	if m.userStake.Amount < args.Amount {
		return fmt.Errorf("%w: stake %d, holding %d", ErrInsufficientFunds, args.Amount, m.userStake.Amount)
	}

	if err := invoke(ctx, token.Transfer(m.key(movUserStake), m.key(movVault), m.key(movUser), args.Amount)); err != nil {
		return err
	}
	mintAuthSeeds := syscall.WithBump(MintAuthoritySeeds(), m.pool.MintAuthBump)
	if err := invoke(ctx, token.MintTo(m.key(movPositionMint), m.key(movUserPosition), m.key(movAuthority), args.Amount), mintAuthSeeds); err != nil {
		return err
	}
	ctx.Log("Staked %d", args.Amount)
	emitEvent(ctx, m.event(EventStaked, args.Amount))
	return nil
}

func handleUnstake(ctx *syscall.ExecutionContext, args *UnstakeArgs) error {
	m, err := loadMovement(ctx, args.Amount)
	if err != nil {
		return err
	}
	if err := matchesStored(ctx, "vault authority", VaultAuthoritySeeds(), m.pool.VaultAuthBump, m.key(movAuthority), ErrAccountMismatch); err != nil {
		return err
	}
	vault, err := loadHolding(m.accs[movVault], "vault", m.pool.StakeMint, m.key(movAuthority), ErrStakeMintMismatch, ErrVaultMismatch)
	if err != nil {
		return err
	}
	if m.userPos.Amount < args.Amount {
		return fmt.Errorf("%w: unstake %d, position %d", ErrInsufficientFunds, args.Amount, m.userPos.Amount)
	}
	if vault.Amount < args.Amount {
		return fmt.Errorf("%w: unstake %d, vault %d", ErrInsufficientFunds, args.Amount, vault.Amount)
	}

	if err := invoke(ctx, token.Burn(m.key(movUserPosition), m.key(movPositionMint), m.key(movUser), args.Amount)); err != nil {
		return err
	}
	vaultAuthSeeds := syscall.WithBump(VaultAuthoritySeeds(), m.pool.VaultAuthBump)
	if err := invoke(ctx, token.Transfer(m.key(movVault), m.key(movUserStake), m.key(movAuthority), args.Amount), vaultAuthSeeds); err != nil {
		return err
	}
	ctx.Log("Unstaked %d", args.Amount)
	emitEvent(ctx, m.event(EventUnstaked, args.Amount))
	return nil
}

func expectPrograms(systemProgram, tokenProgram, rent *syscall.AccountInfo) error {
	if err := expectKey(systemProgram, types.SystemProgramID, "system program", ErrAccountMismatch); err != nil {
		return err
	}
	if err := expectKey(tokenProgram, types.TokenProgramID, "token program", ErrAccountMismatch); err != nil {
		return err
	}
	return expectKey(rent, types.SysvarRentID, "rent sysvar", ErrAccountMismatch)
}

func checkMints(pool *PoolState, stakeMint, posMint *syscall.AccountInfo) error {
	if err := expectKey(stakeMint, pool.StakeMint, "stake mint", ErrStakeMintMismatch); err != nil {
		return err
	}
	return expectKey(posMint, pool.PosMint, "position mint", ErrPosMintMismatch)
}
