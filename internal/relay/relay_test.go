package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Maryclair03/Latest-LittleWatch/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRelay(t *testing.T, maxLen int64) (*redis.Client, *Relay) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, New(client, "littlewatch:vitals:stream", maxLen, zap.NewNop())
}

func sampleRecord(hr float64) Record {
	return Record{
		UserID:       "user-1",
		DeviceSerial: "ABC123",
		Snapshot: models.VitalsSnapshot{
			HeartRate:  models.Float64Ptr(hr),
			Source:     "channel",
			ReceivedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestRelay_Publish(t *testing.T) {
	client, r := setupRelay(t, 0)
	ctx := context.Background()

	id, err := r.Publish(ctx, sampleRecord(120))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := client.XRange(ctx, "littlewatch:vitals:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got Record
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &got))
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "ABC123", got.DeviceSerial)
	require.NotNil(t, got.Snapshot.HeartRate)
	assert.Equal(t, 120.0, *got.Snapshot.HeartRate)
	assert.Contains(t, msgs[0].Values, "timestamp")
}

func TestRelay_EnqueueFlushesOnStop(t *testing.T) {
	client, r := setupRelay(t, 0)
	r.Start()

	for i := 0; i < 5; i++ {
		assert.True(t, r.Enqueue(sampleRecord(float64(100+i))))
	}
	r.Stop()

	n, err := client.XLen(context.Background(), "littlewatch:vitals:stream").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	assert.False(t, r.Enqueue(sampleRecord(1)))
	r.Stop()
}

func TestRelay_PublishErrorIsLogged(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	r := New(client, "s", 0, zap.NewNop())
	mr.Close()

	r.Start()
	assert.True(t, r.Enqueue(sampleRecord(120)))
	// 写入失败不会阻塞停止
	r.Stop()
}

func TestRelay_RestartAfterStop(t *testing.T) {
	client, r := setupRelay(t, 0)
	ctx := context.Background()

	r.Start()
	assert.True(t, r.Enqueue(sampleRecord(120)))
	r.Stop()
	assert.False(t, r.Enqueue(sampleRecord(121)))

	r.Start()
	assert.True(t, r.Enqueue(sampleRecord(122)))
	r.Stop()

	n, err := client.XLen(ctx, "littlewatch:vitals:stream").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRelay_StartTwiceKeepsOneWorker(t *testing.T) {
	client, r := setupRelay(t, 0)
	r.Start()
	r.Start()
	assert.True(t, r.Enqueue(sampleRecord(120)))
	r.Stop()

	n, err := client.XLen(context.Background(), "littlewatch:vitals:stream").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
