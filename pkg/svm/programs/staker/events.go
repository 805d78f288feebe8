package staker

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// Event discriminators, the first field of each "Program data:" line.
var (
	StakedDiscriminator   = eventDiscriminator("Staked")
	UnstakedDiscriminator = eventDiscriminator("Unstaked")
)

func eventDiscriminator(name string) [8]byte {
	var d [8]byte
	h := types.SHA256([]byte("event:" + name))
	copy(d[:], h[:8])
	return d
}

// Event kinds.
const (
	EventStaked   = "staked"
	EventUnstaked = "unstaked"
)

// Event records a completed Stake or Unstake.
type Event struct {
	Kind      string
	Pool      types.Pubkey
	StakeMint types.Pubkey
	User      types.Pubkey
	Amount    uint64
}

func (e *Event) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, pk := range []types.Pubkey{e.Pool, e.StakeMint, e.User} {
		if err := enc.WriteBytes(pk[:], false); err != nil {
			return err
		}
	}
	return enc.WriteUint64(e.Amount, bin.LE)
}

func (e *Event) UnmarshalWithDecoder(dec *bin.Decoder) error {
	for _, pk := range []*types.Pubkey{&e.Pool, &e.StakeMint, &e.User} {
		b, err := dec.ReadNBytes(32)
		if err != nil {
			return err
		}
		copy(pk[:], b)
	}
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	e.Amount = amount
	return nil
}

func emitEvent(ctx *syscall.ExecutionContext, e *Event) {
	disc := StakedDiscriminator
	if e.Kind == EventUnstaked {
		disc = UnstakedDiscriminator
	}
	var buf bytes.Buffer
	_ = e.MarshalWithEncoder(bin.NewBorshEncoder(&buf))
	ctx.LogData(disc[:], buf.Bytes())
}

// ParseEvents decodes the staker events in a transaction's logs. Lines that
// are not staker events are skipped.
func ParseEvents(logs []string) ([]Event, error) {
	var events []Event
	for _, line := range logs {
		fields, ok := syscall.ParseLogData(line)
		if !ok || len(fields) != 2 || len(fields[0]) != 8 {
			continue
		}
		var e Event
		switch [8]byte(fields[0]) {
		case StakedDiscriminator:
			e.Kind = EventStaked
		case UnstakedDiscriminator:
			e.Kind = EventUnstaked
		default:
			continue
		}
		if err := e.UnmarshalWithDecoder(bin.NewBorshDecoder(fields[1])); err != nil {
			return nil, fmt.Errorf("%w: %s event: %v", ErrInvalidAccountData, e.Kind, err)
		}
		events = append(events, e)
	}
	return events, nil
}
