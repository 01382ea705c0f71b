package blobstore

import (
	"context"
	"fmt"
	"os"

	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/gcp"
	"golang.org/x/oauth2/google"
)

const gcsScope = "https://www.googleapis.com/auth/devstorage.read_write"

// OpenGCS opens a Google Cloud Storage bucket. An empty keyFile falls back to
// application default credentials.
func OpenGCS(ctx context.Context, bucketName, keyFile string, opts Options) (*Backend, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("blobstore: gcs bucket name is required")
	}
	var creds *google.Credentials
	var err error
	if keyFile == "" {
		creds, err = gcp.DefaultCredentials(ctx)
	} else {
		var data []byte
		data, err = os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("blobstore: read key file: %w", err)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, gcsScope)
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: gcs credentials: %w", err)
	}
	client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, fmt.Errorf("blobstore: gcs client: %w", err)
	}
	bucket, err := gcsblob.OpenBucket(ctx, client, bucketName, nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open gcs bucket %s: %w", bucketName, err)
	}
	b, err := New(bucket, opts)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}
