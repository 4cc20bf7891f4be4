// Package avatar downloads remote profile images and stores a local copy.
package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/google/uuid"
)

const (
	// DefaultTimeout bounds a single download.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBytes caps the accepted image size.
	DefaultMaxBytes int64 = 5 << 20

	objectExtension    = ".jpg"
	defaultContentType = "image/jpeg"
)

// Storage persists a downloaded image and returns its public URL.
type Storage interface {
	Put(ctx context.Context, name, contentType string, body io.Reader) (string, error)
}

// Config wires the fetcher.
type Config struct {
	Storage  Storage
	Client   *http.Client
	Timeout  time.Duration
	MaxBytes int64
	IDGen    types.IDGenerator
	Logger   types.Logger
}

// Fetcher implements types.ImageFetcher.
type Fetcher struct {
	storage  Storage
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	idGen    types.IDGenerator
	logger   types.Logger
}

var _ types.ImageFetcher = (*Fetcher)(nil)

// NewFetcher validates cfg and returns a Fetcher.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.Storage == nil {
		return nil, errors.New("avatar: storage required")
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Fetcher{
		storage:  cfg.Storage,
		client:   client,
		timeout:  timeout,
		maxBytes: maxBytes,
		idGen:    idGen,
		logger:   logger,
	}, nil
}

// FetchAndStore downloads remoteURL and persists it under a fresh
// "<uuid>.jpg" name. Every download or storage failure is reported as
// types.ErrUpstreamUnavailable wrapping the cause.
func (f *Fetcher) FetchAndStore(ctx context.Context, remoteURL string) (string, error) {
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return "", upstream(errors.New("avatar: empty url"))
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, contentType, err := f.download(ctx, remoteURL)
	if err != nil {
		return "", upstream(err)
	}

	name := nameFor(f.idGen.UUID())
	url, err := f.storage.Put(ctx, name, contentType, bytes.NewReader(body))
	if err != nil {
		return "", upstream(err)
	}
	f.logger.Debug("avatar: stored", "name", name, "bytes", len(body))
	return url, nil
}

func (f *Fetcher) download(ctx context.Context, remoteURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("avatar: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, "", fmt.Errorf("avatar: image exceeds %d bytes", f.maxBytes)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return body, contentType, nil
}

func nameFor(id uuid.UUID) string {
	return id.String() + objectExtension
}

func upstream(err error) error {
	return errors.Join(types.ErrUpstreamUnavailable, err)
}
