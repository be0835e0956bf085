package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"log/slog"

	"jamsplitter/internal/logging"
	"jamsplitter/internal/queue"
	"jamsplitter/internal/services"
	"jamsplitter/internal/services/whisper"
)

// RunJob executes the stage sequence for a queued job. Stage failures are
// recorded on the job record; RunJob never retries a failed stage.
func (o *Orchestrator) RunJob(ctx context.Context, job *queue.Job) {
	if job == nil {
		return
	}
	ctx = services.WithJobID(ctx, job.ID)
	logger := o.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSourceURL, job.SourceURL),
	)

	if err := o.store.MarkProcessing(ctx, job.ID, checkpointAccepted); err != nil {
		logger.ErrorContext(ctx, "failed to mark job processing",
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_write_lost"),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		return
	}

	start := time.Now()
	logger.InfoContext(ctx, "pipeline started",
		logging.String("output_format", job.OutputFormat),
		logging.String(logging.FieldEventType, "pipeline_start"),
	)

	sourcePath, err := o.runDownload(ctx, job)
	if err != nil {
		o.failJob(ctx, logger, job, "download", err)
		return
	}
	if err := o.advance(ctx, logger, job, checkpointDownloaded); err != nil {
		return
	}

	stems, err := o.runSeparate(ctx, job, sourcePath)
	if err != nil {
		o.failJob(ctx, logger, job, "separate", err)
		return
	}
	if err := o.advance(ctx, logger, job, checkpointSeparated); err != nil {
		return
	}

	finalStems, err := o.runConvert(ctx, job, stems)
	if err != nil {
		o.failJob(ctx, logger, job, "convert", err)
		return
	}

	if o.artifacts != nil {
		placed, err := o.artifacts.Place(ctx, job.ID, finalStems)
		if err != nil {
			o.failJob(ctx, logger, job, "finalize", err)
			return
		}
		finalStems = placed
	}

	o.runCaptions(ctx, logger, job, sourcePath, finalStems)

	// Memoize before completing so a repeat submission after completion is
	// guaranteed to hit the cache. A cache write failure does not undo the
	// finished work.
	if err := o.cache.Store(ctx, job.SourceURL, finalStems); err != nil {
		logger.WarnContext(ctx, "failed to memoize artifact set",
			logging.Error(err),
			logging.String(logging.FieldEventType, "cache_store_failed"),
			logging.String(logging.FieldErrorHint, "repeat submissions for this url will recompute"),
		)
	}

	if err := o.store.MarkCompleted(ctx, job.ID); err != nil {
		logger.ErrorContext(ctx, "failed to mark job completed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_write_lost"),
			logging.String(logging.FieldErrorHint, "job state is unknown to observers; check job database access"),
		)
		return
	}
	logger.InfoContext(ctx, "pipeline completed",
		logging.Int("stem_count", len(finalStems)),
		logging.Duration("pipeline_duration", time.Since(start)),
		logging.String(logging.FieldEventType, "pipeline_complete"),
	)
}

func (o *Orchestrator) runDownload(ctx context.Context, job *queue.Job) (string, error) {
	ctx = services.WithStage(ctx, "download")
	ctx, cancel := o.stageContext(ctx, o.cfg.Engines.DownloadTimeout)
	defer cancel()
	return o.engines.Downloader.Fetch(ctx, job.ID, job.SourceURL)
}

func (o *Orchestrator) runSeparate(ctx context.Context, job *queue.Job, sourcePath string) (map[string]string, error) {
	ctx = services.WithStage(ctx, "separate")
	ctx, cancel := o.stageContext(ctx, o.cfg.Engines.SeparateTimeout)
	defer cancel()
	stems, err := o.engines.Separator.Separate(ctx, job.ID, sourcePath)
	if err != nil {
		return nil, err
	}
	// An engine that exits cleanly without stems failed all the same.
	if len(stems) == 0 {
		return nil, services.Wrap(services.ErrStageFailure, "separate", "run", "engine produced no stems", nil)
	}
	return stems, nil
}

func (o *Orchestrator) runConvert(ctx context.Context, job *queue.Job, stems map[string]string) (map[string]string, error) {
	if job.OutputFormat == o.cfg.Pipeline.NativeFormat {
		return stems, nil
	}
	ctx = services.WithStage(ctx, "convert")
	ctx, cancel := o.stageContext(ctx, o.cfg.Engines.ConvertTimeout)
	defer cancel()
	converted, err := o.engines.Converter.ConvertAll(ctx, stems, job.OutputFormat)
	if err != nil {
		return nil, err
	}
	if len(converted) == 0 {
		return nil, services.Wrap(services.ErrStageFailure, "convert", "run", "engine produced no output", nil)
	}
	return converted, nil
}

// runCaptions transcribes the vocals stem (or the source download) and writes
// an SRT next to the placed stems. Caption failures never fail the job.
func (o *Orchestrator) runCaptions(ctx context.Context, logger *slog.Logger, job *queue.Job, sourcePath string, stems map[string]string) {
	if !o.cfg.Pipeline.Captions || o.engines.Transcriber == nil {
		return
	}
	ctx = services.WithStage(ctx, "captions")

	audio := sourcePath
	if vocals, ok := stems["vocals"]; ok {
		audio = vocals
	}
	segments, err := o.engines.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		logger.WarnContext(ctx, "caption transcription failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "captions_failed"),
		)
		return
	}
	if len(segments) == 0 {
		logger.WarnContext(ctx, "caption transcription produced no usable segments",
			logging.String(logging.FieldEventType, "captions_empty"),
		)
		return
	}

	srtPath := filepath.Join(filepath.Dir(audio), fmt.Sprintf("%s_captions.srt", job.ID))
	if o.artifacts != nil {
		srtPath = filepath.Join(o.artifacts.JobDir(job.ID), fmt.Sprintf("%s_captions.srt", job.ID))
	}
	if err := whisper.WriteSRT(srtPath, segments); err != nil {
		logger.WarnContext(ctx, "failed to write captions",
			logging.Error(err),
			logging.String(logging.FieldEventType, "captions_failed"),
		)
		return
	}
	logger.InfoContext(ctx, "captions written",
		logging.String("captions_file", srtPath),
		logging.Int("segment_count", len(segments)),
	)
}

// advance persists the next checkpoint. An advance that cannot be persisted
// aborts the run: a job whose progress cannot be recorded must not keep
// consuming engine time while observers see stale state.
func (o *Orchestrator) advance(ctx context.Context, logger *slog.Logger, job *queue.Job, checkpoint float64) error {
	if err := o.store.UpdateProgress(ctx, job.ID, checkpoint); err != nil {
		logger.ErrorContext(ctx, "failed to persist checkpoint",
			logging.Float64("checkpoint", checkpoint),
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_write_lost"),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		return err
	}
	return nil
}

func (o *Orchestrator) failJob(ctx context.Context, logger *slog.Logger, job *queue.Job, stage string, stageErr error) {
	logger.ErrorContext(ctx, "stage failed",
		logging.String(logging.FieldStage, stage),
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failed"),
	)
	if err := o.store.MarkFailed(ctx, job.ID, stageErr.Error()); err != nil {
		// The one unrecoverable condition: the failure itself could not be
		// recorded, so the job's true state is unknown to observers.
		logger.ErrorContext(ctx, "failed to record job failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_write_lost"),
			logging.String(logging.FieldErrorHint, "job state is unknown to observers; check job database access"),
		)
	}
}

func (o *Orchestrator) stageContext(ctx context.Context, timeoutSeconds int) (context.Context, context.CancelFunc) {
	if timeoutSeconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
}
