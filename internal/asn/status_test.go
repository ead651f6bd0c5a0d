package asn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusDraft, StatusConfirmed, true},
		{StatusDraft, StatusCancelled, true},
		{StatusDraft, StatusArrived, false},
		{StatusConfirmed, StatusInTransit, true},
		{StatusConfirmed, StatusDraft, false},
		{StatusInTransit, StatusArrived, true},
		{StatusArrived, StatusReceiving, true},
		{StatusArrived, StatusCompleted, false},
		{StatusReceiving, StatusCompleted, true},
		{StatusReceiving, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusDraft, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusPredicates(t *testing.T) {
	require.True(t, StatusDraft.Editable())
	require.True(t, StatusConfirmed.Editable())
	require.False(t, StatusArrived.Editable())

	require.True(t, StatusArrived.Receivable())
	require.True(t, StatusReceiving.Receivable())
	require.False(t, StatusInTransit.Receivable())

	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusCancelled.Terminal())
	require.False(t, StatusReceiving.Terminal())

	require.False(t, Status("shipped").Valid())
}

func TestLineDerivedStatuses(t *testing.T) {
	line := Line{Quantity: 10}
	require.Equal(t, ReceivePending, line.ReceiveStatus())
	require.Equal(t, ProcessNone, line.ProcessStatus())

	line.ReceivedQuantity = 4
	require.Equal(t, ReceivePartial, line.ReceiveStatus())

	line.ProcessedQuantity = 2
	require.Equal(t, ProcessPartial, line.ProcessStatus())
	require.Equal(t, int64(2), line.UnprocessedRemainder())

	line.ReceivedQuantity = 10
	line.ProcessedQuantity = 10
	require.Equal(t, ReceiveComplete, line.ReceiveStatus())
	require.Equal(t, ProcessFull, line.ProcessStatus())

	line.ProcessedQuantity = 11
	require.Error(t, line.CheckQuantities())
}
