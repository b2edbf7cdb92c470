package supa

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

// BucketStore exposes one storage bucket through the platform's storage
// API. It satisfies storage.ObjectStore so callers cannot tell it apart
// from the S3-compatible driver.
type BucketStore struct {
	client *Client
	bucket string
}

// Bucket returns a store scoped to a named bucket.
func (c *Client) Bucket(name string) *BucketStore {
	return &BucketStore{client: c, bucket: name}
}

// Put uploads an object to bucket/key.
func (s *BucketStore) Put(ctx context.Context, token, key string, r io.Reader, size int64, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(key), r)
	if err != nil {
		return err
	}
	if size > 0 {
		req.ContentLength = size
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Cache-Control", "max-age=3600")
	s.client.setAuthHeaders(req, token)
	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// PublicURL resolves the public download URL for an object. The bucket must
// be marked public on the platform; resolution is purely local.
func (s *BucketStore) PublicURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return s.client.baseURL + "/storage/v1/object/public/" + s.bucket + "/" + escapeKey(key), nil
}

// Delete removes an object.
func (s *BucketStore) Delete(ctx context.Context, token, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(key), nil)
	if err != nil {
		return err
	}
	s.client.setAuthHeaders(req, token)
	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *BucketStore) objectURL(key string) string {
	return s.client.baseURL + "/storage/v1/object/" + s.bucket + "/" + escapeKey(key)
}

func escapeKey(key string) string {
	return (&url.URL{Path: key}).EscapedPath()
}
