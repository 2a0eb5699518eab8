// Package unlock runs the decryption batch: every encrypted file under
// Unlocked/ is dispatched to its registered decoder by a bounded worker
// pool, and the plain audio is written into New/. Originals are never
// removed — the unlock phase is purely additive.
package unlock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mayi-music/core/algo/common"
	"github.com/mayi-music/core/internal/metadata"
	"github.com/mayi-music/core/internal/metrics"
	"github.com/mayi-music/core/internal/mmap"
	"github.com/mayi-music/core/internal/pool"
	"github.com/mayi-music/core/internal/sniff"
	"github.com/mayi-music/core/internal/tagembed"
)

// Result is the per-file outcome of one unlock task.
type Result struct {
	InputPath  string
	OutputPath string
	Ext        string
	MIME       string
	Success    bool
	Err        error
	Duration   time.Duration
}

// Summary aggregates a whole batch, reported once the pool drains.
type Summary struct {
	Total          int
	Succeeded      int
	Failed         int
	Duration       time.Duration
	FilesPerSecond float64
	AvgSecPerFile  float64
	Workers        int
	CPUCount       int
}

// ProgressFunc is invoked as files complete, at 10% completion or every 5
// files, whichever is more frequent, plus once more on the final file.
type ProgressFunc func(done, total, succeeded, failed int)

// Pool drives one unlock batch over a fixed set of input/output directories.
type Pool struct {
	inputDir  string
	outputDir string
	workers   int // 0 means auto
	logger    *zap.Logger

	// mmkvPath/mmkvKey, when set, are forwarded to every QMC decoder's
	// DecoderParams as a secondary key source for mgg/mflac files whose
	// trailing embedded key is absent or unusable.
	mmkvPath string
	mmkvKey  string
}

func NewPool(inputDir, outputDir string, workers int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{inputDir: inputDir, outputDir: outputDir, workers: workers, logger: logger}
}

// WithMMKV configures the optional Tencent MMKV vault consulted as a
// secondary QMC key source. Returns p for chaining.
func (p *Pool) WithMMKV(path, key string) *Pool {
	p.mmkvPath = path
	p.mmkvKey = key
	return p
}

// Run dispatches every plain file under inputDir to its registered decoder,
// writing results into outputDir, and returns per-file results plus the
// batch summary. A file whose extension has no registered decoder is still
// counted in the batch; it fails with KindUnsupportedFormat. progress may
// be nil.
func (p *Pool) Run(ctx context.Context, progress ProgressFunc) ([]Result, *Summary, error) {
	files, err := p.candidateFiles()
	if err != nil {
		return nil, nil, fmt.Errorf("unlock: list candidates: %w", err)
	}

	cpuCount := runtime.NumCPU()
	workers := p.workers
	if workers <= 0 {
		workers = workerCount(cpuCount, len(files))
	}
	if workers < 1 {
		workers = 1
	}

	start := time.Now()
	results := make([]Result, len(files))

	if len(files) == 0 {
		return results, &Summary{Workers: workers, CPUCount: cpuCount}, nil
	}

	type indexedTask struct {
		index int
		path  string
	}
	tasks := make(chan indexedTask, len(files))
	for i, f := range files {
		tasks <- indexedTask{index: i, path: f}
	}
	close(tasks)

	var (
		mu                sync.Mutex
		done, succ, failN int
	)
	step := progressStep(len(files))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				res := p.unlockOne(ctx, t.path)
				results[t.index] = res

				mu.Lock()
				done++
				if res.Success {
					succ++
				} else {
					failN++
				}
				report := progress != nil && (done == len(files) || done%step == 0)
				d, s, f, n := done, succ, failN, len(files)
				mu.Unlock()

				if report {
					progress(d, n, s, f)
				}

				metrics.GlobalMetrics.RecordFileProcessed()
				if res.Success {
					metrics.GlobalMetrics.RecordFileSucceeded()
				} else {
					metrics.GlobalMetrics.RecordFileFailed()
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	summary := &Summary{
		Total:     len(files),
		Succeeded: succ,
		Failed:    failN,
		Duration:  elapsed,
		Workers:   workers,
		CPUCount:  cpuCount,
	}
	if elapsed > 0 {
		summary.FilesPerSecond = float64(len(files)) / elapsed.Seconds()
	}
	if len(files) > 0 {
		summary.AvgSecPerFile = elapsed.Seconds() / float64(len(files))
	}
	return results, summary, nil
}

// workerCount clamps the pool size to max(2, min(cpuCount, fileCount, 8)),
// a fixed bound rather than a size/priority heuristic.
func workerCount(cpuCount, fileCount int) int {
	n := cpuCount
	if fileCount < n {
		n = fileCount
	}
	if n > 8 {
		n = 8
	}
	if n < 2 {
		n = 2
	}
	return n
}

// progressStep is the smaller of "every 10%" and "every 5 files".
func progressStep(total int) int {
	tenPercent := total / 10
	if tenPercent < 1 {
		tenPercent = 1
	}
	if tenPercent < 5 {
		return tenPercent
	}
	return 5
}

// candidateFiles lists every plain file under Unlocked/, registered
// extension or not: a file with no registered decoder is still a batch
// member, classified and reported by unlockOne's own dispatch step rather
// than silently excluded before the batch starts.
func (p *Pool) candidateFiles() ([]string, error) {
	entries, err := os.ReadDir(p.inputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(p.inputDir, e.Name()))
	}
	return files, nil
}

// unlockOne decrypts one file and writes the result into outputDir. The
// source file in Unlocked/ is never touched.
func (p *Pool) unlockOne(ctx context.Context, path string) Result {
	start := time.Now()
	res := Result{InputPath: path}

	finish := func(err error) Result {
		res.Err = err
		res.Success = err == nil
		res.Duration = time.Since(start)
		if err != nil {
			p.logger.Warn("unlock failed", zap.String("path", path), zap.Error(err))
		}
		return res
	}

	// Files at or above 1MB are read via the mmap-backed reader (zero-copy,
	// falls back to plain file I/O on platforms/files it can't map);
	// smaller files skip the mapping overhead entirely.
	reader, err := mmap.NewOptimizedFileReader(path)
	if err != nil {
		return finish(common.NewError(common.KindIO, "unlock.open", path, err))
	}
	defer reader.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	factory, ok := common.GetDecoder(ext)
	if !ok {
		return finish(common.NewError(common.KindUnsupportedFormat, "unlock.dispatch", path, fmt.Errorf("no decoder registered for %q", ext)))
	}

	dec := factory(&common.DecoderParams{
		Reader:    reader,
		Extension: ext,
		FilePath:  path,
		Logger:    p.logger,
		MMKVPath:  p.mmkvPath,
		MMKVKey:   p.mmkvKey,
	})
	if err := dec.Validate(); err != nil {
		if _, ok := common.KindOf(err); !ok {
			err = common.NewError(common.KindInvalidMagic, "unlock.validate", path, err)
		}
		return finish(err)
	}

	buf := pool.GetBuffer(pool.OptimalBufferSize(fileSizeOf(path), "."+ext))
	defer pool.PutBuffer(buf)

	var audio bytes.Buffer
	if _, err := io.CopyBuffer(&audio, dec, buf); err != nil {
		return finish(common.NewError(common.KindCryptoFailure, "unlock.decrypt", path, err))
	}

	header := audio.Bytes()
	if len(header) > 256 {
		header = header[:256]
	}
	outExt, mime := sniff.SniffWithFallback(header, "mp3")
	res.Ext = outExt
	res.MIME = mime

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outName := metadata.SanitizeFilename(stem) + "." + outExt
	outPath := filepath.Join(p.outputDir, outName)

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return finish(common.NewError(common.KindIO, "unlock.mkdir", p.outputDir, err))
	}
	if err := os.WriteFile(outPath, audio.Bytes(), 0o644); err != nil {
		return finish(common.NewError(common.KindIO, "unlock.write", outPath, err))
	}
	res.OutputPath = outPath

	p.embedContainerMetadata(ctx, dec, path, outPath, outExt, stem)

	return finish(nil)
}

// embedContainerMetadata writes tags into the freshly decrypted file. Title
// and artist start from SmartParseFilenameMeta on the original filename (the
// bare stem when no title is parsed); a title, artist list or album carried
// by the decoder's own container (NCM's encrypted JSON blob, for instance)
// replaces them. A cover is written only when the decoder returns embedded
// cover bytes; no artwork is downloaded here. Failure here is
// never fatal to the unlock result: tag embedding is best-effort polish on
// top of a file that's already usable.
func (p *Pool) embedContainerMetadata(ctx context.Context, dec common.Decoder, inPath, outPath, outExt, fallbackTitle string) {
	fromName := common.SmartParseFilenameMeta(filepath.Base(inPath))
	tags := tagembed.Tags{
		Title:  firstNonEmpty(fromName.GetTitle(), fallbackTitle),
		Artist: strings.Join(fromName.GetArtists(), "/"),
	}

	if getter, ok := dec.(common.AudioMetaGetter); ok {
		if meta, err := getter.GetAudioMeta(ctx); err == nil && meta != nil {
			tags.Title = firstNonEmpty(meta.GetTitle(), tags.Title)
			if artists := meta.GetArtists(); len(artists) > 0 {
				tags.Artist = strings.Join(artists, "/")
			}
			tags.Album = meta.GetAlbum()
		}
	}

	if cg, ok := dec.(common.CoverGetter); ok {
		if cover, err := cg.GetCover(ctx); err == nil {
			tags.Cover = cover
		}
	}

	if err := tagembed.Embed(outPath, tags); err != nil {
		p.logger.Debug("tag embed skipped", zap.String("path", outPath), zap.Error(err))
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func fileSizeOf(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
