// Package storage owns the concurrent ranged fetches that feed the BGZF
// window scheduler: one background goroutine per in-flight window, each
// writing directly into a caller-supplied slice of the rotating buffer.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// RangeDownload tracks one in-flight ranged GET. Join blocks until the
// fetch completes, returning the number of bytes written and any error.
type RangeDownload struct {
	done chan struct{}
	n    int64
	err  error
}

// Join blocks until the download completes, or returns (0, nil) immediately
// if d is nil (no fetch was ever started for this window).
func (d *RangeDownload) Join() (int64, error) {
	if d == nil {
		return 0, nil
	}
	<-d.done
	return d.n, d.err
}

// Completed returns an already-finished RangeDownload, for use by tests and
// fakes that don't need a real network fetch.
func Completed(n int64, err error) *RangeDownload {
	d := &RangeDownload{done: make(chan struct{}), n: n, err: err}
	close(d.done)
	return d
}

// Client issues ranged GETs against one bucket/key pair in an object store.
type Client struct {
	s3     s3iface.S3API
	bucket string
	key    string
}

// NewClient builds a Client backed by an S3 session.
func NewClient(sess *session.Session, bucket, key string) *Client {
	return &Client{s3: s3.New(sess), bucket: bucket, key: key}
}

// NewClientWithAPI builds a Client around an injected S3 API, for tests.
func NewClientWithAPI(api s3iface.S3API, bucket, key string) *Client {
	return &Client{s3: api, bucket: bucket, key: key}
}

// StartRange starts a background ranged GET for [firstByte, firstByte+numBytes)
// and writes the response body directly into dest. It returns nil if
// numBytes is not positive, so that callers never have to special-case an
// empty window.
func (c *Client) StartRange(ctx context.Context, firstByte, numBytes int64, dest []byte) *RangeDownload {
	if numBytes <= 0 {
		return nil
	}
	d := &RangeDownload{done: make(chan struct{})}
	go func() {
		defer close(d.done)
		rng := fmt.Sprintf("bytes=%d-%d", firstByte, firstByte+numBytes-1)
		vlog.Infof("storage: fetching s3://%s/%s range %q", c.bucket, c.key, rng)

		out, err := c.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.key),
			Range:  aws.String(rng),
		})
		if err != nil {
			d.err = errors.Wrap(err, "storage: GetObject failed")
			return
		}
		defer out.Body.Close()

		n, err := io.ReadFull(out.Body, dest[:numBytes])
		d.n = int64(n)
		if err != nil && err != io.ErrUnexpectedEOF {
			d.err = errors.Wrap(err, "storage: reading response body")
			return
		}
		if int64(n) != numBytes {
			d.err = errors.Errorf("storage: short read: got %d want %d bytes", n, numBytes)
			return
		}
		vlog.Infof("storage: finished download, got %d bytes", n)
	}()
	return d
}
