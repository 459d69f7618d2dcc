// Package cloudsync mirrors finished memo files to S3-compatible storage.
// Upload is strictly after the fact: the local file stays the source of
// truth and a failed or disabled upload never affects the recording path.
package cloudsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/config"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/eventlog"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/util"
)

const (
	queueDepth    = 16
	uploadTimeout = 5 * time.Minute
	maxAttempts   = 3
	keyPrefix     = "memos/"
)

// job is one file to mirror.
type job struct {
	localPath string
	key       string
	size      int64
}

// Uploader mirrors memo files to a bucket through a single worker goroutine.
// Enqueue never blocks; a full queue drops the request with a warning and
// the file simply stays local.
type Uploader struct {
	client *s3.Client
	bucket string
	events *eventlog.Logger // optional

	queue   chan job
	stopCh  chan struct{}
	wg      sync.WaitGroup
	backoff *util.Backoff
}

// newClient builds an S3 client from static credentials. A custom endpoint
// switches to path-style addressing for S3-compatible providers.
func newClient(cfg config.SyncConfig) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// New builds an uploader and starts its worker. The event logger may be
// nil. Call Stop to flush and shut down.
func New(cfg config.SyncConfig, events *eventlog.Logger) (*Uploader, error) {
	if !cfg.IsConfigured() {
		return nil, errors.New("cloud sync is not configured")
	}

	u := &Uploader{
		client:  newClient(cfg),
		bucket:  cfg.Bucket,
		events:  events,
		queue:   make(chan job, queueDepth),
		stopCh:  make(chan struct{}),
		backoff: util.NewBackoff(2*time.Second, 30*time.Second),
	}
	u.wg.Add(1)
	go u.worker()
	return u, nil
}

// Enqueue queues a finished memo file for upload.
func (u *Uploader) Enqueue(path string) {
	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("Sync: cannot stat file for upload", "path", path, "error", err)
		return
	}

	name := filepath.Base(path)
	select {
	case u.queue <- job{localPath: path, key: keyPrefix + name, size: info.Size()}:
		slog.Info("Sync: queued for upload", "file", name)
		u.logEvent(eventlog.UploadQueued, keyPrefix+name, 0, "")
	default:
		slog.Warn("Sync: upload queue full, file stays local only", "file", name)
	}
}

// logEvent records an upload event in the history log, when one is wired.
func (u *Uploader) logEvent(eventType eventlog.EventType, key string, attempt int, errMsg string) {
	if u.events == nil {
		return
	}
	if err := u.events.LogUpload(eventType, key, attempt, errMsg); err != nil {
		slog.Warn("Sync: event log write failed", "error", err)
	}
}

// Stop drains the queue and waits for the worker to exit.
func (u *Uploader) Stop() {
	close(u.stopCh)
	u.wg.Wait()
}

// worker processes the queue, draining remaining items on shutdown.
func (u *Uploader) worker() {
	defer u.wg.Done()

	for {
		select {
		case <-u.stopCh:
			for {
				select {
				case j := <-u.queue:
					u.upload(j)
				default:
					return
				}
			}
		case j := <-u.queue:
			u.upload(j)
		}
	}
}

// upload mirrors one file, retrying transient failures with backoff. The
// local file is never removed afterwards.
func (u *Uploader) upload(j job) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := u.putObject(j)
		if err == nil {
			u.backoff.Reset()
			slog.Info("Sync: upload completed", "key", j.key)
			u.logEvent(eventlog.UploadCompleted, j.key, attempt, "")
			return
		}
		if os.IsNotExist(err) {
			slog.Warn("Sync: file vanished before upload", "path", j.localPath)
			return
		}

		slog.Error("Sync: upload failed", "key", j.key, "attempt", attempt, "error", err)
		u.logEvent(eventlog.UploadFailed, j.key, attempt, err.Error())
		if attempt < maxAttempts {
			time.Sleep(u.backoff.Next())
		}
	}
	slog.Error("Sync: upload abandoned", "key", j.key, "attempts", maxAttempts)
}

func (u *Uploader) putObject(j job) error {
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	file, err := os.Open(j.localPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("Sync: close after upload failed", "path", j.localPath, "error", err)
		}
	}()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(j.key),
		Body:          file,
		ContentLength: aws.Int64(j.size),
		ContentType:   aws.String(contentTypeFor(j.localPath)),
	})
	if err != nil {
		return util.WrapError("put object", err)
	}
	return nil
}

// contentTypeFor maps a memo file extension to its MIME type.
func contentTypeFor(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, preset := range types.CodecPresets {
		if ext == preset.Extension {
			return preset.MIMEType
		}
	}
	return "application/octet-stream"
}

// TestConnection verifies bucket access by uploading and removing a marker
// object.
func TestConnection(cfg config.SyncConfig) error {
	if !cfg.IsConfigured() {
		return errors.New("cloud sync is not configured")
	}

	client := newClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("voicememod connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return util.WrapError("upload test object", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("Sync: could not remove test object", "key", testKey, "error", err)
	}

	return nil
}
