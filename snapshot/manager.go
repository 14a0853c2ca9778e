package snapshot

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/vecd/blobstore"
	"github.com/hupe1980/vecd/resource"
)

// Target is the database surface the manager drives.
type Target interface {
	Snapshot(ctx context.Context, w io.Writer) error
	Restore(ctx context.Context, r io.Reader) error
}

// LatestTracker records which archive is current. Stores whose
// listings are not atomic under concurrent writers (S3) use one to
// commit the pointer transactionally.
type LatestTracker interface {
	// Latest returns the current version and archive name.
	Latest(ctx context.Context) (uint64, string, error)

	// Commit records name as the next version.
	Commit(ctx context.Context, name string) (uint64, error)
}

// ManagerOptions holds optional settings for NewManager.
type ManagerOptions struct {
	// Prefix namespaces archives within the store. Default
	// "snapshots/".
	Prefix string

	// Latest tracks the current archive. Without one, the
	// lexically-last listed name wins; archive names embed a UTC
	// timestamp, so that is chronological order.
	Latest LatestTracker

	// Controller throttles snapshot IO. Nil means unthrottled.
	Controller *resource.Controller
}

// Manager writes and restores archives through a blob store.
type Manager struct {
	store      blobstore.Store
	prefix     string
	latest     LatestTracker
	controller *resource.Controller
}

// NewManager creates a snapshot manager on top of store.
func NewManager(store blobstore.Store, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{Prefix: "snapshots/"}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Manager{
		store:      store,
		prefix:     opts.Prefix,
		latest:     opts.Latest,
		controller: opts.Controller,
	}
}

// Save snapshots target into a new archive and returns its name.
// A failed save deletes the partial archive.
func (m *Manager) Save(ctx context.Context, target Target) (string, error) {
	name := fmt.Sprintf("%s%s.vsnap", m.prefix, time.Now().UTC().Format("20060102-150405.000000000"))

	w, err := m.store.Create(ctx, name)
	if err != nil {
		return "", err
	}

	if err := target.Snapshot(ctx, m.controller.ThrottleWriter(ctx, w)); err != nil {
		_ = w.Close()
		_ = m.store.Delete(ctx, name)

		return "", err
	}

	if err := w.Close(); err != nil {
		_ = m.store.Delete(ctx, name)
		return "", err
	}

	if m.latest != nil {
		if _, err := m.latest.Commit(ctx, name); err != nil {
			_ = m.store.Delete(ctx, name)
			return "", err
		}
	}

	return name, nil
}

// Load restores target from the named archive.
func (m *Manager) Load(ctx context.Context, target Target, name string) error {
	r, err := m.store.Open(ctx, name)
	if err != nil {
		return err
	}

	defer r.Close()

	return target.Restore(ctx, m.controller.ThrottleReader(ctx, r))
}

// LoadLatest restores target from the most recent archive. Returns
// blobstore.ErrNotFound when no archive exists.
func (m *Manager) LoadLatest(ctx context.Context, target Target) error {
	name, err := m.LatestName(ctx)
	if err != nil {
		return err
	}

	return m.Load(ctx, target, name)
}

// LatestName returns the name of the most recent archive.
func (m *Manager) LatestName(ctx context.Context) (string, error) {
	if m.latest != nil {
		_, name, err := m.latest.Latest(ctx)
		return name, err
	}

	names, err := m.store.List(ctx, m.prefix)
	if err != nil {
		return "", err
	}

	if len(names) == 0 {
		return "", blobstore.ErrNotFound
	}

	return names[len(names)-1], nil
}

// List returns all archive names, oldest first.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx, m.prefix)
}

// Prune deletes all but the newest keep archives and returns the
// deleted names.
func (m *Manager) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}

	names, err := m.store.List(ctx, m.prefix)
	if err != nil {
		return nil, err
	}

	if len(names) <= keep {
		return nil, nil
	}

	victims := names[:len(names)-keep]

	deleted := make([]string, 0, len(victims))

	for _, name := range victims {
		if err := m.store.Delete(ctx, name); err != nil {
			return deleted, err
		}

		deleted = append(deleted, name)
	}

	return deleted, nil
}
