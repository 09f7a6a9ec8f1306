package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("SlowDown")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3_UploadsOnFinishSeed(t *testing.T) {
	client := newFakeS3()
	s := NewS3(client, "results", "batch-1")
	ctx := context.Background()

	require.NoError(t, s.Emit(ctx, 4, 0, testRecord(4, 0)))
	require.NoError(t, s.Emit(ctx, 4, 1, testRecord(4, 1)))
	assert.Empty(t, client.objects, "nothing is uploaded before the seed finishes")

	require.NoError(t, s.FinishSeed(ctx, 4))

	counts := string(client.objects["results/batch-1/seed4/counts.csv"])
	lines := strings.Split(strings.TrimSpace(counts), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "timestep,Susceptible"))
	assert.Equal(t, "text/csv", client.types["results/batch-1/seed4/counts.csv"])

	var final snapshot.Snapshot
	require.NoError(t, json.Unmarshal(client.objects["results/batch-1/seed4/final_snapshot.json"], &final))
	assert.Equal(t, 1, final.Timestep)
	require.NoError(t, s.Close())
}

func TestS3_CountsOnlyAndRetry(t *testing.T) {
	client := newFakeS3()
	client.fail = 1
	s := NewS3(client, "results", "")
	ctx := context.Background()

	require.NoError(t, s.Emit(ctx, 0, 0, countsRecord(3, 0)))
	require.Error(t, s.FinishSeed(ctx, 0))
	require.NoError(t, s.FinishSeed(ctx, 0), "the buffer survives a failed upload")

	assert.Contains(t, client.objects, "results/seed0/counts.csv")
	assert.NotContains(t, client.objects, "results/seed0/final_snapshot.json")
}

func TestS3_CloseUploadsPending(t *testing.T) {
	client := newFakeS3()
	s := NewS3(client, "b", "p")
	require.NoError(t, s.Emit(context.Background(), 1, 0, countsRecord(3, 0)))
	require.NoError(t, s.Close())
	assert.Contains(t, client.objects, "b/p/seed1/counts.csv")
}
