package job

import (
	"context"
	"fmt"
	"testing"

	"moltworks/fault"
)

type fakeNormalizeStore struct {
	creator    string
	creatorErr error
	backfills  int
	applied    bool
}

func (f *fakeNormalizeStore) CreatorOf(ctx context.Context, jobID string) (string, error) {
	return f.creator, f.creatorErr
}

func (f *fakeNormalizeStore) BackfillDefaults(ctx context.Context, jobID string) (bool, error) {
	f.backfills++
	return f.applied, nil
}

func TestInitializer_BackfillsWhenCreatorPresent(t *testing.T) {
	store := &fakeNormalizeStore{creator: "user-1", applied: true}
	init := NewInitializer(store)
	init.logf = func(string, ...any) {}

	if err := init.Normalize(context.Background(), "job-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.backfills != 1 {
		t.Fatalf("expected one backfill, got %d", store.backfills)
	}
}

func TestInitializer_SkipsMalformedRecord(t *testing.T) {
	store := &fakeNormalizeStore{creator: ""}
	init := NewInitializer(store)

	var logged string
	init.logf = func(format string, args ...any) { logged = fmt.Sprintf(format, args...) }

	if err := init.Normalize(context.Background(), "job-1"); err != nil {
		t.Fatalf("malformed record must not error: %v", err)
	}
	if store.backfills != 0 {
		t.Fatal("malformed record must not be mutated")
	}
	if logged == "" {
		t.Fatal("expected malformed record to be logged")
	}
}

func TestInitializer_ToleratesRedelivery(t *testing.T) {
	store := &fakeNormalizeStore{creator: "user-1", applied: false}
	init := NewInitializer(store)
	init.logf = func(string, ...any) {}

	for i := 0; i < 3; i++ {
		if err := init.Normalize(context.Background(), "job-1"); err != nil {
			t.Fatalf("redelivery %d errored: %v", i, err)
		}
	}
	if store.backfills != 3 {
		t.Fatalf("expected 3 merge attempts, got %d", store.backfills)
	}
}

func TestInitializer_VanishedJobIsIgnored(t *testing.T) {
	store := &fakeNormalizeStore{creatorErr: fault.New(fault.NotFound, "job: not found")}
	init := NewInitializer(store)
	init.logf = func(string, ...any) {}

	if err := init.Normalize(context.Background(), "job-1"); err != nil {
		t.Fatalf("missing job must not error: %v", err)
	}
}

func TestInitializer_RequiresJobID(t *testing.T) {
	init := NewInitializer(&fakeNormalizeStore{})
	err := init.Normalize(context.Background(), "")
	if fault.KindOf(err) != fault.InvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}
