package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/AngeloRai/genmeter/internal/analytics"
	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/source"
	"github.com/AngeloRai/genmeter/internal/store"
)

// SessionRecord pairs a session summary with its completed-task audit trail.
type SessionRecord struct {
	Summary analytics.Summary
	Tasks   []model.TaskRecord
}

// LoadResult holds the output of the full data loading pipeline.
type LoadResult struct {
	Sessions     []SessionRecord
	TotalFiles   int
	ParsedFiles  int
	ParseErrors  int
	FileErrors   int
	ProjectCount int
}

// CachedLoadResult extends LoadResult with cache metadata.
type CachedLoadResult struct {
	LoadResult
	CacheHits int
	Reparsed  int
}

// ProgressFunc is called during loading to report progress.
// current is the number of files processed so far, total is the total count.
type ProgressFunc func(current, total int)

// Load discovers and parses all session logs under the data directory.
// It uses a bounded worker pool for parallel parsing.
func Load(dataDir string, opts source.ParseOptions, progressFn ProgressFunc) (*LoadResult, error) {
	files, err := source.ScanDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dataDir, err)
	}

	result := &LoadResult{
		TotalFiles:   len(files),
		ProjectCount: source.CountProjects(files),
	}
	if len(files) == 0 {
		return result, nil
	}

	results := parseParallel(files, opts, progressFn, 0, len(files))
	for _, pr := range results {
		collect(result, pr)
	}

	return result, nil
}

// LoadWithCache discovers logs, diffs them against the cache by mtime and
// size, reparses only changed files, and returns the combined result set.
func LoadWithCache(dataDir string, opts source.ParseOptions, cache *store.Store, progressFn ProgressFunc) (*CachedLoadResult, error) {
	files, err := source.ScanDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dataDir, err)
	}

	result := &CachedLoadResult{
		LoadResult: LoadResult{
			TotalFiles:   len(files),
			ProjectCount: source.CountProjects(files),
		},
	}
	if len(files) == 0 {
		return result, nil
	}

	tracked, err := cache.GetTrackedFiles()
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}

	var toReparse []source.DiscoveredFile
	unchangedSet := make(map[string]struct{})

	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			result.FileErrors++
			continue
		}
		cached, ok := tracked[f.Path]
		if ok && cached.MtimeNs == info.ModTime().UnixNano() && cached.SizeBytes == info.Size() {
			unchangedSet[f.Path] = struct{}{}
		} else {
			toReparse = append(toReparse, f)
		}
	}

	result.CacheHits = len(unchangedSet)
	result.Reparsed = len(toReparse)

	if len(unchangedSet) > 0 {
		stored, err := cache.LoadAllSessions()
		if err != nil {
			return nil, fmt.Errorf("loading cached sessions: %w", err)
		}
		for _, ss := range stored {
			if _, ok := unchangedSet[ss.FilePath]; !ok {
				continue
			}
			tasks, err := cache.LoadTasks(ss.Summary.SessionID)
			if err != nil {
				return nil, fmt.Errorf("loading cached tasks: %w", err)
			}
			result.Sessions = append(result.Sessions, SessionRecord{Summary: ss.Summary, Tasks: tasks})
			result.ParsedFiles++
		}
	}

	if len(toReparse) > 0 {
		results := parseParallel(toReparse, opts, progressFn, result.CacheHits, result.TotalFiles)
		for i, pr := range results {
			if collect(&result.LoadResult, pr) {
				info, err := os.Stat(toReparse[i].Path)
				if err != nil {
					continue
				}
				_ = cache.SaveSession(pr.Summary, pr.Tasks, toReparse[i].Path, info.ModTime().UnixNano(), info.Size())
			}
		}
	}

	return result, nil
}

// parseParallel fans the files out over a bounded worker pool and returns
// results in input order.
func parseParallel(files []source.DiscoveredFile, opts source.ParseOptions, progressFn ProgressFunc, progressBase, progressTotal int) []source.ParseResult {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make([]source.ParseResult, len(files))
	var wg sync.WaitGroup
	var processed atomic.Int64

	for i := range files {
		work <- i
	}
	close(work)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				results[idx] = source.ParseFile(files[idx], opts)
				n := processed.Add(1)
				if progressFn != nil {
					progressFn(int(n)+progressBase, progressTotal)
				}
			}
		}()
	}
	wg.Wait()

	return results
}

// collect folds one parse result into the load result. It reports whether the
// session carried any tasks and is worth caching.
func collect(result *LoadResult, pr source.ParseResult) bool {
	if pr.Err != nil {
		result.FileErrors++
		return false
	}
	result.ParsedFiles++
	result.ParseErrors += pr.ParseErrors

	if pr.Summary.TaskCount == 0 {
		return false
	}
	result.Sessions = append(result.Sessions, SessionRecord{Summary: pr.Summary, Tasks: pr.Tasks})
	return true
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "genmeter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "genmeter")
}

// CachePath returns the full path to the cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "sessions.db")
}
