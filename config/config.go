// Package config resolves runtime configuration for the summariser from its
// environment, the way a Lambda function is configured in practice:
// no config files, only env vars set on the function.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/pkg/errors"

	"github.com/genomebridge/vcf-slice-summariser/bgzf"
)

const (
	envRegion         = "AWS_REGION"
	envCABundle       = "VCF_SLICE_CA_BUNDLE"
	envMaxWindowBytes = "VCF_SLICE_MAX_WINDOW_BYTES"
	envMaxWindows     = "VCF_SLICE_MAX_WINDOWS"

	defaultCABundle = "/etc/pki/tls/certs/ca-bundle.crt"
)

// Config holds everything read from the environment at startup.
type Config struct {
	Region         string
	CABundlePath   string
	MaxWindowBytes int64
	MaxWindows     int
}

// FromEnv reads Config from the process environment. AWS_REGION is
// required; every other variable falls back to the system's defaults.
func FromEnv() (Config, error) {
	c := Config{
		Region:       os.Getenv(envRegion),
		CABundlePath: defaultCABundle,
	}
	if c.Region == "" {
		return c, errors.Errorf("config: %s must be set", envRegion)
	}
	if v := os.Getenv(envCABundle); v != "" {
		c.CABundlePath = v
	}
	if v := os.Getenv(envMaxWindowBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, errors.Wrapf(err, "config: parsing %s", envMaxWindowBytes)
		}
		c.MaxWindowBytes = n
	}
	if v := os.Getenv(envMaxWindows); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, errors.Wrapf(err, "config: parsing %s", envMaxWindows)
		}
		c.MaxWindows = n
	}
	return c, nil
}

// AWSConfig builds the *aws.Config the storage client session should use,
// wiring in the configured CA bundle if the file is present so Lambda's
// stripped-down base image can still verify the S3 endpoint's certificate.
func (c Config) AWSConfig() (*aws.Config, error) {
	cfg := aws.NewConfig().WithRegion(c.Region)

	pem, err := os.ReadFile(c.CABundlePath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "config: reading CA bundle %s", c.CABundlePath)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.Errorf("config: no certificates found in %s", c.CABundlePath)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	cfg = cfg.WithHTTPClient(&http.Client{Transport: transport})
	return cfg, nil
}

// ReaderOptions maps the configured limits onto bgzf.ReaderOptions. A zero
// MaxWindowBytes/MaxWindows falls back to the package defaults.
func (c Config) ReaderOptions() bgzf.ReaderOptions {
	return bgzf.ReaderOptions{
		MaxWindowBytes: c.MaxWindowBytes,
		MaxWindows:     c.MaxWindows,
	}
}
