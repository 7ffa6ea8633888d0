package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/cadence/internal/task"
)

func executions() []*task.Execution {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	done := &task.Execution{ID: "e1", TaskID: "t1", StartTime: start, Status: task.StatusRunning}
	done.Finish(task.StatusCompleted, start.Add(2*time.Second))
	done.Outcome = json.RawMessage(`{"ok":true}`)

	failed := &task.Execution{ID: "e2", TaskID: "t1", StartTime: start.Add(time.Hour), Status: task.StatusRunning}
	failed.Finish(task.StatusFailed, start.Add(time.Hour+time.Second))
	failed.Error = "boom"

	return []*task.Execution{done, failed}
}

func TestEncodeDecode(t *testing.T) {
	in := executions()

	data, err := Encode(in)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, data[:4], "zstd frame magic")

	out, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "e1", out[0].ID)
	assert.Equal(t, task.StatusCompleted, out[0].Status)
	assert.JSONEq(t, `{"ok":true}`, string(out[0].Outcome))
	assert.Equal(t, "boom", out[1].Error)
	assert.Equal(t, int64(1000), *out[1].Duration)
}

func TestKey(t *testing.T) {
	at := time.UnixMilli(1735689600123)
	assert.Equal(t, "executions-1735689600123.jsonl.zst", Key(at))
}

type memorySink struct {
	objects map[string][]byte
	err     error
}

func (m *memorySink) Put(_ context.Context, key string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return nil
}

func TestArchiver_Archive(t *testing.T) {
	sink := &memorySink{}
	a := New(sink)
	a.now = func() time.Time { return time.UnixMilli(42) }

	require.NoError(t, a.Archive(context.Background(), executions()))
	require.Contains(t, sink.objects, "executions-42.jsonl.zst")

	out, err := Decode(bytes.NewReader(sink.objects["executions-42.jsonl.zst"]))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestArchiver_EmptyBatchIsNoop(t *testing.T) {
	sink := &memorySink{}
	require.NoError(t, New(sink).Archive(context.Background(), nil))
	assert.Empty(t, sink.objects)
}

func TestArchiver_SinkError(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	err := New(sink).Archive(context.Background(), executions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestFileSink_Put(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archives")
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	require.NoError(t, sink.Put(context.Background(), "executions-1.jsonl.zst", []byte("payload")))

	data, err := os.ReadFile(filepath.Join(dir, "executions-1.jsonl.zst"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Error(t, sink.Put(context.Background(), "../escape", []byte("x")))
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink_Put(t *testing.T) {
	client := &fakeS3{}
	sink := newS3Sink(client, "backups", "cadence/")

	require.NoError(t, sink.Put(context.Background(), "executions-7.jsonl.zst", []byte("abc")))
	assert.Equal(t, "backups", aws.ToString(client.input.Bucket))
	assert.Equal(t, "cadence/executions-7.jsonl.zst", aws.ToString(client.input.Key))
	assert.Equal(t, int64(3), aws.ToInt64(client.input.ContentLength))
	assert.Equal(t, []byte("abc"), client.body)
}

func TestNewS3Sink_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3Sink(ctx, S3Options{Region: "us-east-1"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewS3Sink(ctx, S3Options{Bucket: "b"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewS3Sink(ctx, S3Options{Bucket: "b", Region: "us-east-1", AccessKeyID: "only-half"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	sink, err := NewS3Sink(ctx, S3Options{
		Bucket:          "b",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		ForcePathStyle:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "b", sink.bucket)
}
