// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/credentials"
	"github.com/tomtom215/adsync/internal/database"
	"github.com/tomtom215/adsync/internal/graph"
	"github.com/tomtom215/adsync/internal/jobs"
	"github.com/tomtom215/adsync/internal/kvstore"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/metrics"
	"github.com/tomtom215/adsync/internal/models"
	"github.com/tomtom215/adsync/internal/ratelimit"
)

// Job parameters.
const (
	paramPageID = "page_id"
	paramName   = "name"
	paramParent = "parent"
	paramUserID = "user_id"
	paramScope  = "scope"
	paramRunID  = "run_id"
)

// Locker hands out SyncLocks. *kvstore.Store implements it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (*kvstore.Lock, error)
}

var stepJobKinds = map[StepKind]jobs.Kind{
	StepPage:   jobs.KindCampaigns,
	StepAdSets: jobs.KindAdSets,
	StepAds:    jobs.KindAds,
	StepLeads:  jobs.KindLeads,
}

var jobStepKinds = map[jobs.Kind]StepKind{
	jobs.KindCampaigns: StepPage,
	jobs.KindAdSets:    StepAdSets,
	jobs.KindAds:       StepAds,
	jobs.KindLeads:     StepLeads,
}

// JobRunner runs each unit of the walk as its own job. A page job covers
// the page, its ad accounts, their campaigns and the page's lead forms; ad
// sets, ads and lead batches are separate jobs.
type JobRunner struct {
	queue   *jobs.Queue
	exec    *Executor
	locks   Locker
	creds   credentials.Provider
	sources SourceFactory
	clock   ratelimit.Clock

	lockTTL               time.Duration
	maxDependencyAttempts int
}

// NewJobRunner registers the sync handlers on queue.
func NewJobRunner(
	queue *jobs.Queue,
	exec *Executor,
	locks Locker,
	creds credentials.Provider,
	sources SourceFactory,
	clock ratelimit.Clock,
	syncCfg config.SyncConfig,
	jobsCfg config.JobsConfig,
) *JobRunner {
	if clock == nil {
		clock = ratelimit.RealClock()
	}
	r := &JobRunner{
		queue:                 queue,
		exec:                  exec,
		locks:                 locks,
		creds:                 creds,
		sources:               sources,
		clock:                 clock,
		lockTTL:               syncCfg.LockTTL,
		maxDependencyAttempts: jobsCfg.MaxDependencyAttempts,
	}
	if r.lockTTL <= 0 {
		r.lockTTL = 5 * time.Minute
	}
	if r.maxDependencyAttempts <= 0 {
		r.maxDependencyAttempts = 2
	}
	for kind := range jobStepKinds {
		queue.Handle(kind, r.handle)
	}
	return r
}

// Name implements Runner.
func (r *JobRunner) Name() string { return StrategyJobs }

// Walk implements Runner by enqueueing root. The walk continues in the
// queue after Walk returns.
func (r *JobRunner) Walk(ctx context.Context, s *Session, root Step, rep *Report) error {
	if err := r.enqueue(ctx, s, root); err != nil {
		rep.stepFailed(root, err)
		return err
	}
	rep.enqueued()
	return nil
}

func (r *JobRunner) enqueue(ctx context.Context, s *Session, step Step) error {
	kind, ok := stepJobKinds[step.Kind]
	if !ok {
		return fmt.Errorf("step %s cannot run as a job", step)
	}
	return r.queue.Enqueue(ctx, jobs.Job{
		Kind:   kind,
		Target: step.Target,
		Params: map[string]string{
			paramPageID: step.PageID,
			paramName:   step.Name,
			paramParent: string(step.Parent),
			paramUserID: s.UserID,
			paramScope:  s.Scope,
			paramRunID:  s.RunID,
		},
	})
}

func stepFromJob(job jobs.Job) Step {
	return Step{
		Kind:   jobStepKinds[job.Kind],
		Target: job.Target,
		PageID: job.Param(paramPageID),
		Name:   job.Param(paramName),
		Parent: models.EntityKind(job.Param(paramParent)),
	}
}

// lockKey names the SyncLock of a job-chained step.
func lockKey(step Step) string {
	switch step.Kind {
	case StepPage:
		return "page:" + step.Target
	case StepAdSets:
		return "campaign:" + step.Target
	case StepAds:
		if step.Parent == models.KindCampaign {
			return "campaign-ads:" + step.Target
		}
		return "adset:" + step.Target
	case StepLeads:
		return "form:" + step.Target
	default:
		return string(step.Kind) + ":" + step.Target
	}
}

func (r *JobRunner) handle(ctx context.Context, job jobs.Job) error {
	step := stepFromJob(job)
	ctx = logging.ContextWithSyncRun(ctx, step.PageID)
	log := logging.Ctx(ctx)

	lock, err := r.locks.TryLock(ctx, lockKey(step), r.lockTTL)
	if err != nil {
		return err
	}
	if lock == nil {
		metrics.RecordJobAttempt(string(job.Kind), "skipped_locked")
		log.Info().Str("step", step.String()).Msg("Step already syncing elsewhere, skipping")
		return nil
	}
	defer lock.Release()

	s, err := r.session(ctx, job)
	if err != nil {
		return jobs.Permanent(err)
	}

	rep := newReport(s.RunID, StrategyJobs, r.clock.Now())
	deferred, err := r.execute(ctx, s, step, rep)
	if err != nil {
		return r.classify(job, err)
	}

	for _, child := range deferred {
		if err := r.enqueue(ctx, s, child); err != nil {
			return fmt.Errorf("enqueue %s: %w", child, err)
		}
	}

	rep.finish(r.clock.Now())
	log.Info().
		Str("step", step.String()).
		Int("attempt", job.Attempt).
		Int("enqueued", len(deferred)).
		Int("errors", rep.ErrorCount()).
		Msg("Sync job complete: " + rep.String())
	return nil
}

func (r *JobRunner) session(ctx context.Context, job jobs.Job) (*Session, error) {
	userID := job.Param(paramUserID)
	token, err := r.creds.Token(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}
	scope := job.Param(paramScope)
	return &Session{
		RunID:  job.Param(paramRunID),
		UserID: userID,
		Scope:  scope,
		Source: r.sources(token, scope),
	}, nil
}

// execute runs step plus the levels that belong to the same job, and
// returns the steps that become jobs of their own.
func (r *JobRunner) execute(ctx context.Context, s *Session, step Step, rep *Report) ([]Step, error) {
	res, err := r.exec.Execute(ctx, s.Source, step, rep)
	if err != nil {
		return nil, err
	}
	if n := res.Batch.MissingParents(); n > 0 {
		return nil, fmt.Errorf("%s: %d item(s) reference unsynced parents: %w", step, n, database.ErrMissingParent)
	}

	var deferred []Step
	for _, child := range res.Children {
		if child.Kind == StepCampaigns || child.Kind == StepLeadForms {
			more, err := r.execute(ctx, s, child, rep)
			if err != nil {
				return nil, err
			}
			deferred = append(deferred, more...)
			continue
		}
		deferred = append(deferred, child)
	}
	return deferred, nil
}

// classify decides whether a failed job is worth retrying. Parent checks
// get a short speculative budget; integrity failures and remote errors use
// the queue's full schedule.
func (r *JobRunner) classify(job jobs.Job, err error) error {
	switch {
	case errors.Is(err, ErrDependencyNotReady):
		if job.Attempt+1 >= r.maxDependencyAttempts {
			return jobs.Permanent(err)
		}
		return err
	case graph.IsFatal(err):
		return jobs.Permanent(err)
	default:
		return err
	}
}
