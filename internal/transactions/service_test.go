package transactions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/angelmondragon/posync/pkg/enums"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCreateGeneratesOfflineIDAndPersists(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	in := sampleInput("", time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))
	row, created, err := svc.Create(ctx, in)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, row.OfflineID)
	require.Equal(t, enums.TransactionStatusPending, row.Status)
	require.Zero(t, row.SyncAttempts)

	stored, err := repo.FindByID(ctx, row.OfflineID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, json.Number("11.34"), stored.Total)
	require.JSONEq(t, string(in.Items), string(stored.Items))
	require.True(t, stored.CreatedAt.Equal(*in.CreatedAt))
}

func TestCreateIsIdempotentOnOfflineID(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	id := "2b7f0c1e-8f0a-4c55-9e1a-6d9a3c1b7e42"

	first, created, err := svc.Create(ctx, sampleInput(id, time.Now()))
	require.NoError(t, err)
	require.True(t, created)

	again := sampleInput(id, time.Now().Add(time.Minute))
	again.Total = json.Number("99")
	second, created, err := svc.Create(ctx, again)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.OfflineID, second.OfflineID)
	require.Equal(t, json.Number("11.34"), second.Total)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCreateKeepsCallerOfflineIDVerbatim(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	id := "2B7F0C1E-8F0A-4C55-9E1A-6D9A3C1B7E42"

	row, created, err := svc.Create(ctx, sampleInput(id, time.Now()))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, id, row.OfflineID)

	stored, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, id, stored.OfflineID)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, got.OfflineID)
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)

	in := sampleInput("not-a-uuid", time.Now())
	in.Total = json.Number("abc")
	in.Items = json.RawMessage(`[{`)
	_, _, err := svc.Create(context.Background(), in)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details := typed.Details().(map[string]string)
	require.Contains(t, details, "offlineId")
	require.Contains(t, details, "total")
	require.Contains(t, details, "items")
}

func TestGetAndList(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	row, _, err := svc.Create(ctx, sampleInput("", time.Now()))
	require.NoError(t, err)

	got, err := svc.Get(ctx, row.OfflineID)
	require.NoError(t, err)
	require.Equal(t, row.OfflineID, got.OfflineID)

	_, err = svc.Get(ctx, "missing")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = repo.RecordFailure(ctx, row.OfflineID, "boom", "X", 1)
	require.NoError(t, err)

	failed := enums.TransactionStatusFailed
	rows, err := svc.List(ctx, &failed)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	pending := enums.TransactionStatusPending
	rows, err = svc.List(ctx, &pending)
	require.NoError(t, err)
	require.Empty(t, rows)
}
