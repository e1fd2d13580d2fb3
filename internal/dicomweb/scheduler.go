package dicomweb

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/study"
)

// Fetcher is the network surface the scheduler drives. *Client satisfies
// it; tests substitute fakes.
type Fetcher interface {
	GetStudyMetadata(ctx context.Context, studyUID string) (*Metadata, error)
	FetchInstance(ctx context.Context, studyUID, seriesUID, objectUID string) (*study.Instance, error)
}

// SeriesOutcome records the fetch result counts for one series, so callers
// and tests can assert on aggregate failures instead of relying on logs.
type SeriesOutcome struct {
	SeriesUID string
	Succeeded int
	Failed    int
}

// Result is the outcome of processing one study request: the finalized
// studies keyed by StudyInstanceUID, plus per-series fetch statistics. An
// empty Studies map with a nil error is the normal "no data" case, distinct
// from a failed fetch.
type Result struct {
	Studies map[string]*study.Study
	Series  []SeriesOutcome
}

// Scheduler retrieves a study's metadata and drives the per-series instance
// downloads with bounded parallelism.
type Scheduler struct {
	fetcher Fetcher
}

// NewScheduler creates a scheduler on top of the given fetcher.
func NewScheduler(fetcher Fetcher) *Scheduler {
	return &Scheduler{fetcher: fetcher}
}

// SelectWorkerCount bounds the download concurrency for a series. Tiny
// series do not amortize connection setup, so they run sequentially; larger
// series get more workers, capped so the remote endpoint is never flooded.
func SelectWorkerCount(totalInstances, requestedWorkers int) int {
	switch {
	case totalInstances <= 2:
		return 1
	case totalInstances <= 10:
		return min(2, requestedWorkers)
	case totalInstances <= 50:
		return min(4, requestedWorkers)
	default:
		return min(8, requestedWorkers)
	}
}

// ProcessStudy fetches the study's metadata, downloads every declared
// instance series by series, and returns the finalized study structures.
// Metadata failures abort the whole call; individual instance failures only
// degrade their series. Series run strictly one at a time — parallelism
// exists only within a series.
func (s *Scheduler) ProcessStudy(ctx context.Context, studyUID string, maxWorkers int) (*Result, error) {
	start := time.Now()
	slog.InfoContext(ctx, "Starting DICOMweb study processing",
		"studyUID", studyUID, "requestedWorkers", maxWorkers)

	meta, err := s.fetcher.GetStudyMetadata(ctx, studyUID)
	if err != nil {
		return nil, err
	}

	total := meta.InstanceCount()
	workers := SelectWorkerCount(total, maxWorkers)
	if workers != maxWorkers {
		slog.InfoContext(ctx, "Optimized worker count",
			"requested", maxWorkers, "selected", workers, "totalInstances", total)
	}

	assembler := study.NewAssembler()
	result := &Result{}

	for _, st := range meta.Studies {
		if st.StudyUID == "" {
			slog.WarnContext(ctx, "Study entry without study_iuid, skipping")
			continue
		}
		for _, se := range st.Series {
			if se.SeriesUID == "" {
				slog.WarnContext(ctx, "Series entry without series_iuid, skipping")
				continue
			}

			downloadStart := time.Now()
			instances, failed := s.runSeries(ctx, st.StudyUID, se, workers)
			result.Series = append(result.Series, SeriesOutcome{
				SeriesUID: se.SeriesUID,
				Succeeded: len(instances),
				Failed:    failed,
			})

			slog.InfoContext(ctx, "Series download completed",
				"seriesUID", se.SeriesUID,
				"succeeded", len(instances),
				"declared", len(se.Instances),
				"elapsed", time.Since(downloadStart).Round(time.Millisecond))

			if len(instances) == 0 {
				slog.WarnContext(ctx, "No valid instances downloaded for series", "seriesUID", se.SeriesUID)
				continue
			}
			for _, inst := range instances {
				// Route by the metadata's study, not whatever the
				// payload happens to declare.
				inst.StudyUID = st.StudyUID
				assembler.AddInstance(inst)
			}
		}
	}

	result.Studies = assembler.Finalize()
	if len(result.Studies) == 0 {
		slog.WarnContext(ctx, "No studies processed successfully",
			"studyUID", studyUID, "elapsed", time.Since(start).Round(time.Millisecond))
	} else {
		slog.InfoContext(ctx, "DICOMweb processing completed",
			"studies", len(result.Studies),
			"workers", workers,
			"elapsed", time.Since(start).Round(time.Millisecond))
	}
	return result, nil
}

// runSeries downloads one series. With more than one worker and at least
// two declared instances the fetches run on a bounded pool of exactly
// `workers` in-flight requests and results arrive in completion order;
// otherwise they run sequentially in declared order. Returns the successful
// instances and the count of dropped ones.
func (s *Scheduler) runSeries(ctx context.Context, studyUID string, se SeriesEntry, workers int) ([]*study.Instance, int) {
	objectUIDs := make([]string, 0, len(se.Instances))
	for _, entry := range se.Instances {
		if entry.ObjectUID == "" {
			continue
		}
		objectUIDs = append(objectUIDs, entry.ObjectUID)
	}
	if len(objectUIDs) == 0 {
		return nil, 0
	}

	if workers > 1 && len(se.Instances) >= 2 {
		return s.fetchParallel(ctx, studyUID, se.SeriesUID, objectUIDs, workers)
	}
	return s.fetchSequential(ctx, studyUID, se.SeriesUID, objectUIDs)
}

func (s *Scheduler) fetchSequential(ctx context.Context, studyUID, seriesUID string, objectUIDs []string) ([]*study.Instance, int) {
	var out []*study.Instance
	failed := 0
	for _, objectUID := range objectUIDs {
		if inst := s.fetchOne(ctx, studyUID, seriesUID, objectUID); inst != nil {
			out = append(out, inst)
		} else {
			failed++
		}
	}
	return out, failed
}

func (s *Scheduler) fetchParallel(ctx context.Context, studyUID, seriesUID string, objectUIDs []string, workers int) ([]*study.Instance, int) {
	jobs := make(chan string)
	results := make(chan *study.Instance)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for objectUID := range jobs {
				results <- s.fetchOne(ctx, studyUID, seriesUID, objectUID)
			}
		}()
	}
	go func() {
		for _, objectUID := range objectUIDs {
			jobs <- objectUID
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	var out []*study.Instance
	failed := 0
	for inst := range results {
		if inst != nil {
			out = append(out, inst)
		} else {
			failed++
		}
	}
	return out, failed
}

// fetchOne performs a single instance fetch, converting every failure into
// an explicit absent result. Never retried.
func (s *Scheduler) fetchOne(ctx context.Context, studyUID, seriesUID, objectUID string) *study.Instance {
	inst, err := s.fetcher.FetchInstance(ctx, studyUID, seriesUID, objectUID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to download instance",
			"objectUID", objectUID, "seriesUID", seriesUID, "error", err)
		return nil
	}
	return inst
}
