package utils

import (
	"context"
	"time"

	"github.com/cppla/campusnews/repository"
	"github.com/cppla/campusnews/storage"
)

// StartUploadCleaner launches a background goroutine that periodically deletes
// stored files no announcement references, such as uploads left behind by a
// crash between storing a file and saving its record. It is best-effort and
// logs failures. The goroutine exits when ctx is cancelled.
func StartUploadCleaner(ctx context.Context, interval, minAge time.Duration, repo repository.AnnouncementRepository, store *storage.Store) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			// Wait first to avoid racing immediately at startup
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if n, err := SweepUploads(ctx, minAge, repo, store); err != nil {
				Sugar.Warnf("upload cleaner failed: %v", err)
			} else if n > 0 {
				Sugar.Infof("upload cleaner removed %d orphaned files", n)
			}
		}
	}()
}

// SweepUploads runs one cleaner pass.
func SweepUploads(ctx context.Context, minAge time.Duration, repo repository.AnnouncementRepository, store *storage.Store) (int, error) {
	items, err := repo.FindAll(ctx, repository.Filter{})
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]struct{})
	for _, a := range items {
		for _, att := range a.Attachments {
			referenced[storage.FileName(att)] = struct{}{}
		}
	}
	return store.Sweep(ctx, minAge, func(name string) bool {
		_, ok := referenced[name]
		return ok
	})
}
