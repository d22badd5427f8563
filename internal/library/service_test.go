package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antti/imagevault/internal/collections"
)

type fakeLibStore struct {
	libs map[collections.ID]Library
}

func newFakeLibStore() *fakeLibStore {
	return &fakeLibStore{libs: map[collections.ID]Library{}}
}

func (f *fakeLibStore) Create(ctx context.Context, spec CreateSpec) (collections.ID, error) {
	id := collections.NewID()
	f.libs[id] = Library{ID: id, Name: spec.Name, Path: spec.Path, Settings: spec.Settings}
	return id, nil
}

func (f *fakeLibStore) Get(ctx context.Context, id collections.ID) (Library, bool, error) {
	l, ok := f.libs[id]
	return l, ok, nil
}

func (f *fakeLibStore) Update(ctx context.Context, id collections.ID, patch Patch) (Library, error) {
	l, ok := f.libs[id]
	if !ok {
		return Library{}, assert.AnError
	}
	if patch.Name != nil {
		l.Name = *patch.Name
	}
	if patch.Settings != nil {
		l.Settings = *patch.Settings
	}
	f.libs[id] = l
	return l, nil
}

func (f *fakeLibStore) Delete(ctx context.Context, id collections.ID) error {
	delete(f.libs, id)
	return nil
}

func (f *fakeLibStore) List(ctx context.Context) ([]Library, error) {
	var out []Library
	for _, l := range f.libs {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLibStore) UpdateStatistics(ctx context.Context, id collections.ID) error { return nil }

type syncCall struct {
	libraryID collections.ID
	autoScan  bool
}

type fakeJobSync struct {
	syncs   []syncCall
	deletes []collections.ID
}

func (f *fakeJobSync) SyncLibraryJob(ctx context.Context, libraryID collections.ID, autoScan bool) error {
	f.syncs = append(f.syncs, syncCall{libraryID: libraryID, autoScan: autoScan})
	return nil
}

func (f *fakeJobSync) DeleteLibraryJob(ctx context.Context, libraryID collections.ID) error {
	f.deletes = append(f.deletes, libraryID)
	return nil
}

func TestServiceCreate_AutoScanMaterializesJob(t *testing.T) {
	store := newFakeLibStore()
	jobs := &fakeJobSync{}
	svc := NewService(store, jobs)

	lib, err := svc.Create(context.Background(), CreateSpec{
		Name: "Manga", Path: "/media/manga", Settings: Settings{AutoScan: true},
	})
	require.NoError(t, err)

	require.Len(t, jobs.syncs, 1)
	assert.Equal(t, lib.ID, jobs.syncs[0].libraryID)
	assert.True(t, jobs.syncs[0].autoScan)
}

func TestServiceUpdate_SettingsToggleSyncsJob(t *testing.T) {
	store := newFakeLibStore()
	jobs := &fakeJobSync{}
	svc := NewService(store, jobs)

	lib, err := svc.Create(context.Background(), CreateSpec{
		Name: "Photos", Path: "/media/photos", Settings: Settings{AutoScan: true},
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), lib.ID, Patch{
		Settings: &Settings{AutoScan: false},
	})
	require.NoError(t, err)

	require.Len(t, jobs.syncs, 2)
	assert.False(t, jobs.syncs[1].autoScan)

	_, err = svc.Update(context.Background(), lib.ID, Patch{
		Settings: &Settings{AutoScan: true},
	})
	require.NoError(t, err)
	require.Len(t, jobs.syncs, 3)
	assert.True(t, jobs.syncs[2].autoScan)
}

func TestServiceUpdate_NonSettingsPatchLeavesJobAlone(t *testing.T) {
	store := newFakeLibStore()
	jobs := &fakeJobSync{}
	svc := NewService(store, jobs)

	lib, err := svc.Create(context.Background(), CreateSpec{
		Name: "Art", Path: "/media/art",
	})
	require.NoError(t, err)
	before := len(jobs.syncs)

	name := "Artwork"
	_, err = svc.Update(context.Background(), lib.ID, Patch{Name: &name})
	require.NoError(t, err)
	assert.Len(t, jobs.syncs, before)
}

func TestServiceDelete_CascadesJobRemoval(t *testing.T) {
	store := newFakeLibStore()
	jobs := &fakeJobSync{}
	svc := NewService(store, jobs)

	lib, err := svc.Create(context.Background(), CreateSpec{
		Name: "Tmp", Path: "/media/tmp", Settings: Settings{AutoScan: true},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), lib.ID))
	require.Len(t, jobs.deletes, 1)
	assert.Equal(t, lib.ID, jobs.deletes[0])

	_, ok, err := svc.Get(context.Background(), lib.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServiceReconcileJobs_SyncsEveryLibrary(t *testing.T) {
	store := newFakeLibStore()
	jobs := &fakeJobSync{}
	svc := NewService(store, jobs)

	_, err := svc.Create(context.Background(), CreateSpec{
		Name: "A", Path: "/a", Settings: Settings{AutoScan: true},
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateSpec{
		Name: "B", Path: "/b",
	})
	require.NoError(t, err)

	jobs.syncs = nil
	require.NoError(t, svc.ReconcileJobs(context.Background()))
	assert.Len(t, jobs.syncs, 2)
}
