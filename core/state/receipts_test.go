package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"fcgsales/core/ledger"
	"fcgsales/core/types"
	"fcgsales/storage"
)

func TestReceiptLogRoundTrip(t *testing.T) {
	log := NewReceiptLog(storage.NewMemDB())

	seq, epoch, err := log.Head()
	require.NoError(t, err)
	require.Zero(t, seq)
	require.Zero(t, epoch)

	signer := ledger.AccountAddress{19: 7}
	require.NoError(t, log.Append(&ledger.Receipt{
		Sequence: 1,
		Epoch:    4,
		Status:   ledger.StatusCommitted,
		Signers:  []ledger.AccountAddress{signer},
		Events: []*types.Event{
			{Type: "offer.sent", Attributes: map[string]string{"offerId": "{a}", "expiry": "3000"}},
		},
	}))
	require.NoError(t, log.Append(&ledger.Receipt{
		Sequence: 2,
		Epoch:    9,
		Status:   ledger.StatusFailed,
		Error:    "offers: offer is expired",
	}))

	seq, epoch, err = log.Head()
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq)
	require.Equal(t, uint64(9), epoch)

	got, err := log.Receipt(1)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCommitted, got.Status)
	require.Equal(t, []ledger.AccountAddress{signer}, got.Signers)
	require.Len(t, got.Events, 1)
	require.Equal(t, "3000", got.Events[0].Attributes["expiry"])

	failed, err := log.Receipt(2)
	require.NoError(t, err)
	require.Equal(t, "offers: offer is expired", failed.Error)
	require.Empty(t, failed.Events)

	_, err = log.Receipt(3)
	require.True(t, errors.Is(err, ErrReceiptNotFound))
}

func TestReceiptLogEvents(t *testing.T) {
	log := NewReceiptLog(storage.NewMemDB())
	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, log.Append(&ledger.Receipt{
			Sequence: seq,
			Status:   ledger.StatusCommitted,
			Events: []*types.Event{
				{Type: "escrow.created", Attributes: map[string]string{}},
				{Type: "escrow.settled", Attributes: map[string]string{}},
			},
		}))
	}

	all, err := log.Events(0, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 6)

	settled, err := log.Events(2, "escrow.settled", 0)
	require.NoError(t, err)
	require.Len(t, settled, 2)
	require.Equal(t, uint64(2), settled[0].Sequence)

	limited, err := log.Events(0, "", 3)
	require.NoError(t, err)
	require.Len(t, limited, 3)
}

func TestReceiptLogRefusesStaleSequence(t *testing.T) {
	log := NewReceiptLog(storage.NewMemDB())
	require.NoError(t, log.Append(&ledger.Receipt{Sequence: 1, Epoch: 1, Status: ledger.StatusCommitted}))
	require.NoError(t, log.Append(&ledger.Receipt{Sequence: 3, Epoch: 5, Status: ledger.StatusCommitted}))

	err := log.Append(&ledger.Receipt{Sequence: 2, Epoch: 4, Status: ledger.StatusCommitted})
	require.ErrorIs(t, err, ErrSequenceRegression)
	err = log.Append(&ledger.Receipt{Sequence: 3, Epoch: 6, Status: ledger.StatusFailed})
	require.ErrorIs(t, err, ErrSequenceRegression)

	seq, epoch, err := log.Head()
	require.NoError(t, err)
	require.Equal(t, uint64(3), seq)
	require.Equal(t, uint64(5), epoch)
	_, err = log.Receipt(2)
	require.ErrorIs(t, err, ErrReceiptNotFound)
	stored, err := log.Receipt(3)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCommitted, stored.Status)
}
