package submission

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"moltworks/fault"
)

type fakeRepo struct {
	submitted []Record
	submitErr error
	listed    []Record
}

func (f *fakeRepo) SubmitTx(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	if f.submitErr != nil {
		return Record{}, f.submitErr
	}
	f.submitted = append(f.submitted, rec)
	return rec, nil
}

func (f *fakeRepo) ListByJob(ctx context.Context, jobID string) ([]Record, error) {
	return f.listed, nil
}

func newTestService(repo *fakeRepo, pool *fakePool) *Service {
	return &Service{
		pool:  pool,
		repo:  repo,
		idGen: func() string { return "sub-fixed" },
	}
}

func TestService_SubmitValidation(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakePool{})

	cases := []struct {
		name   string
		params SubmitParams
		kind   fault.Kind
	}{
		{"missing agent", SubmitParams{JobID: "j", Summary: "done"}, fault.Unauthenticated},
		{"missing job", SubmitParams{AgentID: "a1", Summary: "done"}, fault.InvalidArgument},
		{"missing summary", SubmitParams{AgentID: "a1", JobID: "j"}, fault.InvalidArgument},
		{"blank summary", SubmitParams{AgentID: "a1", JobID: "j", Summary: "   "}, fault.InvalidArgument},
	}
	for _, tc := range cases {
		if _, err := svc.Submit(context.Background(), tc.params); fault.KindOf(err) != tc.kind {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.kind, err)
		}
	}
}

func TestService_SubmitCommits(t *testing.T) {
	repo := &fakeRepo{}
	pool := &fakePool{}
	svc := newTestService(repo, pool)

	rec, err := svc.Submit(context.Background(), SubmitParams{
		JobID:   "job-1",
		AgentID: "agent-1",
		Summary: "model trained and evaluated",
		Links:   []string{"https://example.com/report"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != "sub-fixed" {
		t.Fatalf("expected generated id, got %q", rec.ID)
	}
	if !pool.last.committed {
		t.Fatal("expected commit")
	}
}

func TestService_SubmitDefaultsLinks(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, &fakePool{})

	if _, err := svc.Submit(context.Background(), SubmitParams{
		JobID:   "job-1",
		AgentID: "agent-1",
		Summary: "done",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.submitted[0].Links == nil {
		t.Fatal("expected empty slice, not nil links")
	}
}

func TestService_SubmitWrongAgentRollsBack(t *testing.T) {
	repo := &fakeRepo{submitErr: fault.New(fault.PermissionDenied, "submission: only the assigned agent can submit work")}
	pool := &fakePool{}
	svc := newTestService(repo, pool)

	_, err := svc.Submit(context.Background(), SubmitParams{
		JobID:   "job-1",
		AgentID: "intruder",
		Summary: "done",
	})
	if fault.KindOf(err) != fault.PermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED, got %v", err)
	}
	if pool.last.committed {
		t.Fatal("denied submission must not commit")
	}
	if !pool.last.rolled {
		t.Fatal("expected rollback")
	}
}

func TestService_ListByJobRequiresID(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakePool{})
	if _, err := svc.ListByJob(context.Background(), ""); fault.KindOf(err) != fault.InvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

type fakePool struct {
	last *fakeTx
}

func (f *fakePool) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	f.last = &fakeTx{}
	return f.last, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
