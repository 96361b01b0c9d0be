package main

import (
	"context"
	"fmt"

	"github.com/autollama/autollama-sub002/internal/config"
	"github.com/autollama/autollama-sub002/internal/ingest/obs"
	"github.com/autollama/autollama-sub002/internal/ingest/pipeline"
	"github.com/autollama/autollama-sub002/internal/ingest/streaming"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// jobRunner implements queue.Runner, combining a Parser, URLFetcher,
// pipeline.Pipeline, and streaming.Dispatcher to actually execute the
// three job types §6 describes. It is the one piece SPEC_FULL.md leaves
// unnamed as a component (§4.7 calls it out as "wired in cmd/ingestd"),
// since it is pure glue between the narrow capabilities the core defines.
type jobRunner struct {
	parser   types.Parser
	fetcher  types.URLFetcher
	pipe     *pipeline.Pipeline
	split    streaming.Thresholds
	disp     *streaming.Dispatcher
	fetchCfg config.StreamingConfig
	log      obs.Logger
}

func newJobRunner(parser types.Parser, fetcher types.URLFetcher, pipe *pipeline.Pipeline, disp *streaming.Dispatcher, streamCfg config.StreamingConfig, log obs.Logger) *jobRunner {
	return &jobRunner{
		parser:  parser,
		fetcher: fetcher,
		pipe:    pipe,
		disp:    disp,
		split: streaming.Thresholds{
			MinSplitSizeBytes: streamCfg.MinSplitSizeBytes,
			MinSplitTextLen:   streamCfg.MinSplitTextLen,
			MinSections:       streamCfg.MinSections,
		},
		fetchCfg: streamCfg,
		log:      log,
	}
}

// Run dispatches on job.Type, matching §6's three logical submission
// shapes (URL, file, internal sub-section).
func (r *jobRunner) Run(ctx context.Context, job types.Job) (types.JobResult, error) {
	switch job.Type {
	case types.JobURLProcessing:
		return r.runURL(ctx, job)
	case types.JobFileProcessing:
		return r.runFile(ctx, job)
	case types.JobChapterDocumentProcessing:
		return r.runSection(ctx, job)
	default:
		return types.JobResult{}, types.Wrap(types.ErrInvalidInput, fmt.Errorf("unknown job type %q", job.Type))
	}
}

func (r *jobRunner) runURL(ctx context.Context, job types.Job) (types.JobResult, error) {
	fetched, err := r.fetcher.Fetch(ctx, job.URL, types.FetchOptions{})
	if err != nil {
		return types.JobResult{}, err
	}
	parsed := types.ParsedContent{Content: fetched.Content, Kind: fetched.Kind, Metadata: fetched.Metadata}
	return r.processOrSplit(ctx, job, parsed, int64(len(fetched.Content)), job.URL)
}

func (r *jobRunner) runFile(ctx context.Context, job types.Job) (types.JobResult, error) {
	if job.File == nil {
		return types.JobResult{}, types.Wrap(types.ErrInvalidInput, fmt.Errorf("file_processing job missing file payload"))
	}
	if job.File.Size > r.fetchCfg.MaxIngestFileSize {
		return types.JobResult{}, types.Wrap(types.ErrInvalidInput, fmt.Errorf("file size %d exceeds max %d", job.File.Size, r.fetchCfg.MaxIngestFileSize))
	}
	parsed, err := r.parser.Parse(ctx, job.File.Bytes, job.File.MimeType, job.File.OriginalName)
	if err != nil {
		return types.JobResult{}, err
	}
	sourceURL := "file://" + job.File.OriginalName
	return r.processOrSplit(ctx, job, parsed, job.File.Size, sourceURL)
}

func (r *jobRunner) runSection(ctx context.Context, job types.Job) (types.JobResult, error) {
	if job.Section == nil {
		return types.JobResult{}, types.Wrap(types.ErrInvalidInput, fmt.Errorf("chapter_document_processing job missing section payload"))
	}
	result, err := r.pipe.Process(ctx, job.Section.Content, job.URL, job.JobID, job.SessionID, job.Options)
	if err != nil {
		return types.JobResult{}, err
	}
	return toJobResult(result), nil
}

// processOrSplit applies §4.6's decision rule: a large, structured,
// multi-section document is split into sub-jobs instead of being run
// through the pipeline directly.
func (r *jobRunner) processOrSplit(ctx context.Context, job types.Job, parsed types.ParsedContent, sizeBytes int64, sourceURL string) (types.JobResult, error) {
	if sections, split := streaming.ShouldSplit(sizeBytes, parsed, r.split); split {
		r.log.Info("splitting document into sections", map[string]any{"job_id": job.JobID, "sections": len(sections)})
		parentName := job.JobID
		if job.File != nil {
			parentName = job.File.OriginalName
		}
		if err := r.disp.Dispatch(ctx, job.JobID, parentName, sourceURL, parsed.Kind, sections, job.Options, job.SessionID); err != nil {
			return types.JobResult{}, err
		}
		return types.JobResult{DocumentID: job.JobID, TotalChunks: 0, ProcessedChunks: 0}, nil
	}

	result, err := r.pipe.Process(ctx, parsed.Content, sourceURL, job.JobID, job.SessionID, job.Options)
	if err != nil {
		return types.JobResult{}, err
	}
	return toJobResult(result), nil
}

func toJobResult(result pipeline.Result) types.JobResult {
	return types.JobResult{
		TotalChunks:     result.TotalChunks,
		ProcessedChunks: result.ProcessedChunks,
		VectorStored:    result.VectorStored,
		DocumentID:      result.Document.ID,
		ProcessingMS:    result.ProcessingMS,
	}
}
