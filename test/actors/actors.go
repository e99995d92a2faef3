package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"moltworks/claim"
	"moltworks/job"
	"moltworks/submission"
)

// World is the shared registry the actors race over: posted jobs and the
// identities that act on them.
type World struct {
	mu      sync.Mutex
	jobs    []PostedJob
	Posters []string
	Agents  []string
}

type PostedJob struct {
	ID    string
	Owner string
}

func (w *World) AddJob(j PostedJob) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jobs = append(w.jobs, j)
}

func (w *World) RandomJob() (PostedJob, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.jobs) == 0 {
		return PostedJob{}, false
	}
	return w.jobs[rand.Intn(len(w.jobs))], true
}

func (w *World) RandomAgent() string {
	return w.Agents[rand.Intn(len(w.Agents))]
}

// done reports whether the actor should exit. Business rejections are the
// point of the exercise and are swallowed; only shutdown stops a loop.
func done(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

func transient(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Poster keeps creating jobs and normalizing them, growing the contested set.
func Poster(ctx context.Context, svc *job.Service, init *job.Initializer, w *World, posterID string, stop <-chan struct{}) error {
	for !done(ctx, stop) {
		rec, err := svc.Create(ctx, job.CreateParams{
			CreatorUserID: posterID,
			Title:         fmt.Sprintf("stress job %d", rand.Int63()),
			Scope:         "generated under load",
			BudgetAmount:  float64(10 + rand.Intn(990)),
		})
		if err == nil {
			if err := init.Normalize(ctx, rec.ID); transient(err) {
				// backend may have been killed mid-flight; retry next round
				continue
			}
			w.AddJob(PostedJob{ID: rec.ID, Owner: posterID})
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
	return nil
}

// Claimant files claims against random jobs, mostly losing races on purpose.
func Claimant(ctx context.Context, svc *claim.Service, w *World, agentID string, stop <-chan struct{}) error {
	for !done(ctx, stop) {
		if j, ok := w.RandomJob(); ok {
			_, _, _ = svc.File(ctx, claim.FileParams{
				JobID:    j.ID,
				AgentID:  agentID,
				Approach: "hammer it until it works",
				ETA:      "2 days",
			})
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
	return nil
}

// Adjudicator plays the job owner: it looks at a random job's claims and
// approves a pending one. Concurrent adjudicators racing over the same job
// exercise the first-commit-wins path.
func Adjudicator(ctx context.Context, svc *claim.Service, w *World, stop <-chan struct{}) error {
	for !done(ctx, stop) {
		if j, ok := w.RandomJob(); ok {
			claims, err := svc.ListByJob(ctx, j.ID)
			if err == nil {
				for _, c := range claims {
					if c.Status == claim.StatusPending {
						_ = svc.Approve(ctx, j.ID, c.ID, j.Owner)
						break
					}
				}
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
	return nil
}

// Submitter delivers work on jobs assigned to its agent identity.
func Submitter(ctx context.Context, jobs *job.Service, subs *submission.Service, w *World, agentID string, stop <-chan struct{}) error {
	for !done(ctx, stop) {
		if j, ok := w.RandomJob(); ok {
			rec, err := jobs.Get(ctx, j.ID)
			if err == nil && rec.Status == job.StatusInProgress &&
				rec.AssignedAgentID != nil && *rec.AssignedAgentID == agentID {
				_, _ = subs.Submit(ctx, submission.SubmitParams{
					JobID:   j.ID,
					AgentID: agentID,
					Summary: "delivered under stress",
				})
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
	return nil
}

// Completer plays the owner accepting submitted work, releasing escrow.
func Completer(ctx context.Context, jobs *job.Service, w *World, stop <-chan struct{}) error {
	for !done(ctx, stop) {
		if j, ok := w.RandomJob(); ok {
			rec, err := jobs.Get(ctx, j.ID)
			if err == nil && rec.Status == job.StatusSubmitted {
				_ = jobs.ApproveWork(ctx, j.ID, j.Owner)
			}
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
	return nil
}
