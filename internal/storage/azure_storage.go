package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureStore keeps artifacts as blobs in one container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

func NewAzureStore(accountName, accountKey, container string) (*AzureStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}

	return &AzureStore{client: client, container: container}, nil
}

func (s *AzureStore) Record(ctx context.Context, duration time.Duration, png []byte) error {
	name := NewArtifact(duration).Name()
	if _, err := s.client.UploadBuffer(ctx, s.container, name, png, nil); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

func (s *AzureStore) List(ctx context.Context) ([]float64, error) {
	names, err := s.names(ctx)
	if err != nil {
		return nil, err
	}
	return durationsFromNames(names), nil
}

func (s *AzureStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	names, err := s.names(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, n := range names {
		a, ok := ParseArtifactName(n)
		if !ok || !a.ID.Time().Before(cutoff) {
			continue
		}
		if _, err := s.client.DeleteBlob(ctx, s.container, n, nil); err != nil {
			return removed, fmt.Errorf("delete %s failed: %w", n, err)
		}
		removed++
	}
	return removed, nil
}

func (s *AzureStore) names(ctx context.Context) ([]string, error) {
	var names []string
	pager := s.client.NewListBlobsFlatPager(s.container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}
