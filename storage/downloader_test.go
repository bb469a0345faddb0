package storage

import (
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubS3API implements just enough of s3iface.S3API for Client.StartRange,
// embedding the interface so every other method panics if ever called.
type stubS3API struct {
	s3iface.S3API
	body     []byte
	err      error
	gotRange string
}

func (s *stubS3API) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	if in.Range != nil {
		s.gotRange = *in.Range
	}
	if s.err != nil {
		return nil, s.err
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(bytes.NewReader(s.body))}, nil
}

func TestClientStartRangeSuccess(t *testing.T) {
	want := []byte("hello, range")
	api := &stubS3API{body: want}
	c := NewClientWithAPI(api, "bucket", "key")

	dest := make([]byte, len(want))
	d := c.StartRange(context.Background(), 10, int64(len(want)), dest)
	n, err := d.Join()
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), n)
	assert.Equal(t, want, dest)
	assert.Equal(t, "bytes=10-21", api.gotRange)
}

func TestClientStartRangeShortReadIsError(t *testing.T) {
	api := &stubS3API{body: []byte("short")}
	c := NewClientWithAPI(api, "bucket", "key")

	dest := make([]byte, 20)
	d := c.StartRange(context.Background(), 0, 20, dest)
	_, err := d.Join()
	assert.Error(t, err)
}

func TestClientStartRangePropagatesAWSError(t *testing.T) {
	api := &stubS3API{err: awserr.New("AccessDenied", "nope", nil)}
	c := NewClientWithAPI(api, "bucket", "key")

	dest := make([]byte, 5)
	d := c.StartRange(context.Background(), 0, 5, dest)
	_, err := d.Join()
	assert.Error(t, err)
}

func TestClientStartRangeZeroBytesReturnsNil(t *testing.T) {
	api := &stubS3API{}
	c := NewClientWithAPI(api, "bucket", "key")

	d := c.StartRange(context.Background(), 0, 0, nil)
	n, err := d.Join()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRangeDownloadJoinOnNilIsNoop(t *testing.T) {
	var d *RangeDownload
	n, err := d.Join()
	require.NoError(t, err)
	assert.Zero(t, n)
}
