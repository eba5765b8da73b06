package repositories

import (
	"context"
	"errors"
	"packchicken-service/core"
	"packchicken-service/workers/fulfillment/models"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := core.OpenDatabase(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func doc(id string) models.JobDocument {
	return models.JobDocument{ID: id, Source: "csv", Order: models.Order{ID: id, OrderNumber: id}}
}

func TestClaimNextIsFIFO(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(newTestDB(t))

	first, err := repo.Enqueue(ctx, doc("1001"))
	require.NoError(t, err)
	second, err := repo.Enqueue(ctx, doc("1002"))
	require.NoError(t, err)

	job, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first, job.ID)
	assert.Equal(t, models.JobPending, job.Status)

	require.NoError(t, repo.SetStatus(ctx, first, models.JobDone))

	job, err = repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, second, job.ID)

	decoded, err := job.Document()
	require.NoError(t, err)
	assert.Equal(t, "1002", decoded.Order.OrderNumber)
}

func TestClaimNextOnEmptyQueue(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	job, err := repo.ClaimNext(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestEnqueueDoesNotDeduplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(newTestDB(t))

	a, err := repo.Enqueue(ctx, doc("2001"))
	require.NoError(t, err)
	b, err := repo.Enqueue(ctx, doc("2001"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	pending, err := repo.HasPending(ctx, "2001")
	require.NoError(t, err)
	assert.True(t, pending)

	pending, err = repo.HasPending(ctx, "9999")
	require.NoError(t, err)
	assert.False(t, pending)
}

// The store has no claim lock; two callers see the same row.
func TestConcurrentClaimsReturnSameJob(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(newTestDB(t))

	id, err := repo.Enqueue(ctx, doc("3001"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make([]uint, 2)
	errs := make([]error, 2)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := repo.ClaimNext(ctx)
			errs[i] = err
			if job != nil {
				ids[i] = job.ID
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errors.Join(errs...))
	assert.Equal(t, []uint{id, id}, ids)
}

func TestMarkDoneAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(newTestDB(t))

	clock := time.Unix(1_700_000_000, 0)
	repo.now = func() time.Time { return clock }

	okID, err := repo.Enqueue(ctx, doc("4001"))
	require.NoError(t, err)
	badID, err := repo.Enqueue(ctx, doc("4002"))
	require.NoError(t, err)

	clock = clock.Add(90 * time.Second)
	require.NoError(t, repo.MarkDone(ctx, okID, "TRK1", "LABELS/label_1.pdf", []string{"label download failed"}))
	require.NoError(t, repo.MarkFailed(ctx, badID, errors.New("recipient incomplete")))

	ok, err := repo.Get(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, ok.Status)
	assert.Equal(t, "TRK1", ok.TrackingNumber)
	assert.Equal(t, "label download failed", ok.Warnings)
	assert.InDelta(t, 1_700_000_000.0, ok.CreatedAt, 0.001)
	assert.InDelta(t, 1_700_000_090.0, ok.UpdatedAt, 0.001)

	bad, err := repo.Get(ctx, badID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, bad.Status)
	assert.Equal(t, "recipient incomplete", bad.LastError)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats[models.JobPending])
	assert.Equal(t, int64(1), stats[models.JobDone])
	assert.Equal(t, int64(1), stats[models.JobFailed])

	recent, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, badID, recent[0].ID)
}

func TestProcessedEmailRecordIsUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewProcessedEmailRepository(newTestDB(t))

	seen, err := repo.Seen(ctx, "<abc@mail>")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, repo.Record(ctx, &models.ProcessedEmail{
		MessageID: "<abc@mail>", ReceivedAt: time.Now(), Status: models.EmailDBError, LastError: "locked",
	}))
	require.NoError(t, repo.Record(ctx, &models.ProcessedEmail{
		MessageID: "<abc@mail>", ReceivedAt: time.Now(), Status: models.EmailOK,
	}))

	seen, err = repo.Seen(ctx, "<abc@mail>")
	require.NoError(t, err)
	assert.True(t, seen)
}
