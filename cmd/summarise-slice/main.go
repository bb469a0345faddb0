// Command summarise-slice is the Lambda entrypoint: it reads one
// SNS-wrapped slice request, streams and inflates the requested BGZF
// virtual range from S3, and counts VCF AC/AN fields over it.
package main

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"

	"github.com/genomebridge/vcf-slice-summariser/bgzf"
	"github.com/genomebridge/vcf-slice-summariser/config"
	"github.com/genomebridge/vcf-slice-summariser/storage"
	"github.com/genomebridge/vcf-slice-summariser/vcf"
)

// sliceRequest is the body of Records[0].Sns.Message, itself a JSON string.
type sliceRequest struct {
	Location     string `json:"location"`
	VirtualStart int64  `json:"virtual_start"`
	VirtualEnd   int64  `json:"virtual_end"`
}

// response is the shape the invocation runtime expects back.
type response struct {
	Headers    map[string]string `json:"headers"`
	StatusCode int               `json:"statusCode"`
	Body       string            `json:"body"`
}

func main() {
	lambda.Main(handleRequest)
}

func handleRequest(ctx context.Context, event events.SNSEvent) (response, error) {
	req, err := parseRequest(event)
	if err != nil {
		return response{}, errors.Wrap(err, "summarise-slice: malformed input")
	}

	bucket, key, err := splitLocation(req.Location)
	if err != nil {
		return response{}, errors.Wrap(err, "summarise-slice: malformed input")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return response{}, err
	}
	awsCfg, err := cfg.AWSConfig()
	if err != nil {
		return response{}, err
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return response{}, errors.Wrap(err, "summarise-slice: building AWS session")
	}

	client := storage.NewClient(sess, bucket, key)
	slice := bgzf.Slice{
		Start: bgzf.VirtualOffset(uint64(req.VirtualStart)),
		End:   bgzf.VirtualOffset(uint64(req.VirtualEnd)),
	}

	start := time.Now()
	reader, err := bgzf.NewSliceReader(ctx, client, slice, cfg.ReaderOptions())
	if err != nil {
		return response{}, errors.Wrap(err, "summarise-slice: opening slice")
	}

	counts, err := vcf.Summarise(reader.Cursor())
	if err != nil {
		return response{}, errors.Wrap(err, "summarise-slice: summarising slice")
	}
	elapsed := time.Since(start)

	stats := reader.Stats()
	throughputMBps := float64(stats.TotalBytes) / 1e6 / elapsed.Seconds()
	vlog.Infof("summarise-slice: s3://%s/%s [%v, %v): %d bytes in %v (%.1f MB/s), %d blocks, degraded=%v",
		bucket, key, slice.Start, slice.End, stats.TotalBytes, elapsed, throughputMBps, stats.BlocksRead, stats.Degraded)
	vlog.Infof("summarise-slice: numVariants=%d numCalls=%d recordsRead=%d",
		counts.NumVariants, counts.NumCalls, counts.RecordsRead)

	return response{
		Headers:    map[string]string{"Access-Control-Allow-Origin": "*"},
		StatusCode: 200,
		Body:       "Success",
	}, nil
}

func parseRequest(event events.SNSEvent) (sliceRequest, error) {
	if len(event.Records) == 0 {
		return sliceRequest{}, errors.New("no SNS records in event")
	}
	var req sliceRequest
	if err := json.Unmarshal([]byte(event.Records[0].SNS.Message), &req); err != nil {
		return sliceRequest{}, errors.Wrap(err, "decoding SNS message")
	}
	if req.Location == "" {
		return sliceRequest{}, errors.New("missing location")
	}
	return req, nil
}

// splitLocation parses an s3://bucket/key URI by splitting at the first '/'
// after the "s3://" prefix, matching the runtime's own convention rather
// than general URI parsing.
func splitLocation(location string) (bucket, key string, err error) {
	const prefix = "s3://"
	if !strings.HasPrefix(location, prefix) {
		return "", "", errors.Errorf("location %q does not start with %s", location, prefix)
	}
	rest := location[len(prefix):]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "", "", errors.Errorf("location %q has no key component", location)
	}
	bucket, key = rest[:idx], rest[idx+1:]
	if bucket == "" || key == "" {
		return "", "", errors.Errorf("location %q has an empty bucket or key", location)
	}
	return bucket, key, nil
}
