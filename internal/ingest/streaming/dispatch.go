package streaming

import (
	"context"
	"time"

	"github.com/autollama/autollama-sub002/internal/ingest/obs"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// JobSubmitter is the narrow C7 JobQueue capability a split document's
// sections are dispatched through.
type JobSubmitter interface {
	Submit(ctx context.Context, job types.Job) (types.Job, error)
}

// Dispatcher turns a set of Sections into chapter_document_processing
// jobs and submits them per §4.6's dispatch rule: the first three
// sections immediately at priority 1, the remainder staggered 2s per
// index at priority 2.
type Dispatcher struct {
	submitter JobSubmitter
	log       obs.Logger
	// newJobID lets tests observe deterministic IDs; production code
	// leaves this nil and Dispatch falls back to the submitter/queue
	// assigning an ID.
	newJobID func() string
	sleep    func(d time.Duration)
}

// NewDispatcher constructs a Dispatcher. log may be nil.
func NewDispatcher(submitter JobSubmitter, log obs.Logger) *Dispatcher {
	if log == nil {
		log = obs.NoopLogger{}
	}
	return &Dispatcher{submitter: submitter, log: log, sleep: time.Sleep}
}

// Dispatch submits one job per section. It returns immediately once the
// first three (immediate) sections are submitted; the staggered
// remainder are submitted from background goroutines, matching §4.6:
// "the first three are dispatched immediately; the remainder are
// scheduled with a 2s stagger per index."
func (d *Dispatcher) Dispatch(ctx context.Context, parentDocumentID, parentName, parentURL, parsedKind string, sections []Section, opt types.Options, sessionID string) error {
	descriptors := DescriptorsFor(parentDocumentID, parentURL, parsedKind, sections)

	for i, desc := range descriptors {
		desc := desc
		immediate, delaySeconds := Stagger(i)
		priority := Priority(i)
		job := types.Job{
			Type:     types.JobChapterDocumentProcessing,
			Section:  &desc,
			URL:      SynthesizedURL(parentName, parsedKind, i),
			Options:  opt,
			Priority: priority,
			Status:   types.JobQueued,
		}
		job.SessionID = sessionID

		if immediate {
			if _, err := d.submitter.Submit(ctx, job); err != nil {
				d.log.Error("dispatch section job failed", map[string]any{"section_index": i, "error": err.Error()})
				return err
			}
			continue
		}

		go func(job types.Job, delay time.Duration, idx int) {
			d.sleep(delay)
			if _, err := d.submitter.Submit(ctx, job); err != nil {
				d.log.Error("staggered dispatch section job failed", map[string]any{"section_index": idx, "error": err.Error()})
			}
		}(job, time.Duration(delaySeconds)*time.Second, i)
	}
	return nil
}
