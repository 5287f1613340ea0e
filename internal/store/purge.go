package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PurgeSession deletes the session with its segments, then removes each
// segment's audio file and any directory left empty by that. Rows are
// deleted first so a failed file removal never leaves dangling records.
func PurgeSession(ctx context.Context, s Store, id string) error {
	if _, err := s.GetSession(ctx, id); err != nil {
		return err
	}
	segments, err := s.SessionSegments(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load segments: %w", err)
	}
	if err := s.DeleteSession(ctx, id); err != nil {
		return err
	}

	var errs []error
	dirs := make(map[string]struct{})
	for _, seg := range segments {
		if seg.AudioPath == "" {
			continue
		}
		if err := os.Remove(seg.AudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove audio %s: %w", seg.AudioPath, err))
		}
		dirs[filepath.Dir(seg.AudioPath)] = struct{}{}
	}
	// only empty directories go; anything else in them is not ours
	for dir := range dirs {
		os.Remove(dir)
	}
	return errors.Join(errs...)
}
