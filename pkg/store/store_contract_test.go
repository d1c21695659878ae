package store

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"imagevault/pkg/domain"
)

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InsertReturnsOwnerCount", func(t *testing.T) {
		s := newStore(t)
		for i := 1; i <= 3; i++ {
			_, count, err := s.InsertImage(newImage(42, fmt.Sprintf("ref-%d", i), ""))
			if err != nil {
				t.Fatalf("insert %d: %v", i, err)
			}
			if count != i {
				t.Fatalf("insert %d: expected count %d, got %d", i, i, count)
			}
		}
		_, count, err := s.InsertImage(newImage(7, "other", ""))
		if err != nil {
			t.Fatalf("insert other owner: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected first image of owner 7 to count 1, got %d", count)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := newStore(t)
		base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			img := newImage(42, fmt.Sprintf("ref-%d", i), "")
			img.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			if _, _, err := s.InsertImage(img); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		images, err := s.ListImagesByOwner(42)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		got := make([]string, 0, len(images))
		for _, img := range images {
			got = append(got, img.ContentRef)
		}
		want := []string{"ref-2", "ref-1", "ref-0"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("unexpected order: got %v want %v", got, want)
		}
	})

	t.Run("ListEmptyOwner", func(t *testing.T) {
		s := newStore(t)
		images, err := s.ListImagesByOwner(99)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if images == nil || len(images) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", images)
		}
	})

	t.Run("GetScopedByOwner", func(t *testing.T) {
		s := newStore(t)
		saved, _, err := s.InsertImage(newImage(42, "mine", "cat"))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		got, ok, err := s.GetImage(42, saved.ID)
		if err != nil || !ok {
			t.Fatalf("expected image, ok=%v err=%v", ok, err)
		}
		if got.LabelOrEmpty() != "cat" || got.ContentRef != "mine" || got.StoragePath != "/blobs/mine.jpg" {
			t.Fatalf("unexpected image: %+v", got)
		}
		if _, ok, err := s.GetImage(7, saved.ID); err != nil || ok {
			t.Fatalf("expected other owner lookup to miss, ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.GetImage(42, saved.ID+1000); err != nil || ok {
			t.Fatalf("expected unknown id to miss, ok=%v err=%v", ok, err)
		}
	})

	t.Run("UnnamedImageHasNoLabel", func(t *testing.T) {
		s := newStore(t)
		saved, _, err := s.InsertImage(newImage(42, "plain", ""))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		got, _, err := s.GetImage(42, saved.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Label != nil {
			t.Fatalf("expected nil label, got %q", *got.Label)
		}
	})

	t.Run("HasImageAtPathScopedByOwner", func(t *testing.T) {
		s := newStore(t)
		img := newImage(42, "shared", "")
		if ok, err := s.HasImageAtPath(42, img.StoragePath); err != nil || ok {
			t.Fatalf("empty store: ok=%v err=%v", ok, err)
		}
		if _, _, err := s.InsertImage(img); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if ok, err := s.HasImageAtPath(42, img.StoragePath); err != nil || !ok {
			t.Fatalf("expected path to be referenced: ok=%v err=%v", ok, err)
		}
		if ok, err := s.HasImageAtPath(7, img.StoragePath); err != nil || ok {
			t.Fatalf("other owner should not see the path: ok=%v err=%v", ok, err)
		}
		if ok, err := s.HasImageAtPath(42, "/blobs/other.jpg"); err != nil || ok {
			t.Fatalf("unrelated path reported as referenced: ok=%v err=%v", ok, err)
		}
	})

	t.Run("ConcurrentInsertsGetDistinctCounts", func(t *testing.T) {
		s := newStore(t)
		const n = 16
		counts := make([]int, n)
		var g errgroup.Group
		for i := 0; i < n; i++ {
			g.Go(func() error {
				_, count, err := s.InsertImage(newImage(5, fmt.Sprintf("c-%d", i), ""))
				counts[i] = count
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("concurrent insert: %v", err)
		}
		sort.Ints(counts)
		for i, c := range counts {
			if c != i+1 {
				t.Fatalf("expected counts 1..%d, got %v", n, counts)
			}
		}
		total, err := s.CountImagesByOwner(5)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if total != n {
			t.Fatalf("expected %d images, got %d", n, total)
		}
	})
}

func newImage(owner int64, ref, label string) domain.Image {
	img := domain.Image{
		OwnerID:     owner,
		ContentRef:  ref,
		StoragePath: "/blobs/" + ref + ".jpg",
	}
	if label != "" {
		img.Label = &label
	}
	return img
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}
