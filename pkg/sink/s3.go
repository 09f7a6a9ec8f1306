package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dd0wney/cluso-epinet/pkg/simerr"
	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
)

// S3API is the subset of *s3.Client used by the S3 sink.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the bucket and, optionally, static credentials.
// Empty credentials fall back to the default AWS chain (AWS_* variables,
// shared config, instance role).
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, simerr.Config("s3").Wrap(err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

type s3Seed struct {
	counts bytes.Buffer
	w      *csv.Writer
	last   *snapshot.Snapshot
}

// S3 buffers each seed in memory and uploads it when the seed finishes:
// <prefix>/seed<N>/counts.csv and, when snapshots were recorded,
// <prefix>/seed<N>/final_snapshot.json.
type S3 struct {
	client S3API
	bucket string
	prefix string

	mu    sync.Mutex
	seeds map[int64]*s3Seed
}

// NewS3 returns an S3 sink writing to bucket under prefix.
func NewS3(client S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix, seeds: make(map[int64]*s3Seed)}
}

func (s *S3) Name() string { return "s3" }

// Key returns the object key of name within seed's folder.
func (s *S3) Key(seed int64, name string) string {
	return path.Join(s.prefix, fmt.Sprintf("seed%d", seed), name)
}

// Emit buffers rec.
func (s *S3) Emit(_ context.Context, seed int64, t int, rec snapshot.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.seeds[seed]
	if !ok {
		st = &s3Seed{}
		st.w = csv.NewWriter(&st.counts)
		if err := st.w.Write(CountsCSVHeader()); err != nil {
			return simerr.Export("s3").Seed(seed).Timestep(t).Wrap(err)
		}
		s.seeds[seed] = st
	}
	if err := st.w.Write(countsRow(t, rec.Counts)); err != nil {
		return simerr.Export("s3").Seed(seed).Timestep(t).Wrap(err)
	}
	if rec.Snapshot != nil {
		st.last = rec.Snapshot
	}
	return nil
}

// FinishSeed uploads the seed's objects. The buffer is kept on failure so
// a retry can upload it again.
func (s *S3) FinishSeed(ctx context.Context, seed int64) error {
	s.mu.Lock()
	st, ok := s.seeds[seed]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	st.w.Flush()
	if err := s.put(ctx, s.Key(seed, "counts.csv"), "text/csv", st.counts.Bytes()); err != nil {
		return simerr.Export("s3").Seed(seed).Context("counts.csv").Wrap(err)
	}
	if st.last != nil {
		data, err := json.Marshal(st.last)
		if err != nil {
			return simerr.Export("s3").Seed(seed).Wrap(err)
		}
		if err := s.put(ctx, s.Key(seed, "final_snapshot.json"), "application/json", data); err != nil {
			return simerr.Export("s3").Seed(seed).Context("final_snapshot.json").Wrap(err)
		}
	}

	s.mu.Lock()
	delete(s.seeds, seed)
	s.mu.Unlock()
	return nil
}

func (s *S3) put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

// Close uploads every seed still buffered.
func (s *S3) Close() error {
	s.mu.Lock()
	seeds := make([]int64, 0, len(s.seeds))
	for seed := range s.seeds {
		seeds = append(seeds, seed)
	}
	s.mu.Unlock()

	var firstErr error
	for _, seed := range seeds {
		if err := s.FinishSeed(context.Background(), seed); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
