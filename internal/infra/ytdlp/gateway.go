// Package ytdlp implements the download gateway on top of yt-dlp.
package ytdlp

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/domain/item"
	"github.com/osa030/tunedl/internal/infra/audiofile"
)

const maxReasonLen = 200

// Config represents gateway configuration.
type Config struct {
	Dir              string
	OutputTemplate   string
	ProgressInterval time.Duration
}

// runFunc performs one transfer, calling onProgress with byte counts of the
// current file, and returns the paths of the files written.
type runFunc func(ctx context.Context, it item.Item, onProgress func(downloaded, total int)) ([]string, error)

// Gateway runs one yt-dlp process per started item.
type Gateway struct {
	cfg    Config
	run    runFunc
	finish func(path string, meta audiofile.Meta)

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

type run struct {
	cancel context.CancelFunc
}

var _ queue.Gateway = (*Gateway)(nil)

// New creates a gateway writing under cfg.Dir.
func New(cfg Config) *Gateway {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 500 * time.Millisecond
	}
	if cfg.OutputTemplate == "" {
		cfg.OutputTemplate = "%(title)s.%(ext)s"
	}
	g := &Gateway{
		cfg:    cfg,
		finish: audiofile.Finish,
		runs:   make(map[string]*run),
	}
	g.run = g.runYtDlp
	return g
}

// Install makes sure a yt-dlp binary is available, downloading it if needed.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return errors.Wrap(err, "failed to install yt-dlp")
	}
	return nil
}

// Start launches the transfer in its own goroutine.
func (g *Gateway) Start(ctx context.Context, job queue.Job) error {
	if job.Item.SourceURL == "" {
		return queue.NewDispatchError("empty source url", nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel}
	g.mu.Lock()
	if prev, ok := g.runs[job.Item.ID]; ok {
		prev.cancel()
	}
	g.runs[job.Item.ID] = r
	g.mu.Unlock()

	g.wg.Add(1)
	go g.transfer(ctx, r, job)
	return nil
}

// Cancel stops the transfer of an item, if running.
func (g *Gateway) Cancel(id string) {
	g.mu.Lock()
	r, ok := g.runs[id]
	g.mu.Unlock()
	if ok {
		r.cancel()
	}
}

// Wait blocks until every running transfer has returned.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// Running returns the number of transfers in flight.
func (g *Gateway) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.runs)
}

func (g *Gateway) transfer(ctx context.Context, r *run, job queue.Job) {
	defer g.wg.Done()
	defer g.release(job.Item.ID, r)

	it := job.Item
	zlog.Info().Msgf("download started: id=%s kind=%s source=%s", it.ID, it.Kind, it.SourceURL)

	tracker := newProgressTracker(it.Kind.IsCollection())
	files, err := g.run(ctx, it, func(downloaded, total int) {
		if p, ok := tracker.update(downloaded, total); ok {
			job.Report(queue.Progress(p))
		}
	})

	if ctx.Err() != nil {
		zlog.Info().Msgf("download cancelled: id=%s", it.ID)
		job.Report(queue.Failed("cancelled"))
		return
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("download failed: id=%s", it.ID)
		job.Report(queue.Failed(summarize(err)))
		return
	}

	if it.Kind == item.KindTrack && it.Format == item.FormatMP3 {
		meta := audiofile.Meta{Title: it.Title, Artist: it.Artist, Album: it.Album}
		for _, f := range files {
			g.finish(f, meta)
		}
	}
	zlog.Info().Msgf("download completed: id=%s files=%d", it.ID, len(files))
	job.Report(queue.Completed())
}

// release forgets r unless a newer run for the same item replaced it.
func (g *Gateway) release(id string, r *run) {
	r.cancel()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.runs[id] == r {
		delete(g.runs, id)
	}
}

func (g *Gateway) runYtDlp(ctx context.Context, it item.Item, onProgress func(downloaded, total int)) ([]string, error) {
	dl := ytdlp.New().
		ExtractAudio().
		AudioFormat(AudioFormat(it.Format)).
		AudioQuality(AudioQuality(it.Quality)).
		ForceOverwrites().
		RestrictFilenames().
		PrintJSON().
		Output(filepath.Join(g.cfg.Dir, g.cfg.OutputTemplate))
	if it.Kind.IsCollection() {
		dl = dl.YesPlaylist()
	} else {
		dl = dl.NoPlaylist()
	}

	dl.ProgressFunc(g.cfg.ProgressInterval, func(update ytdlp.ProgressUpdate) {
		onProgress(update.DownloadedBytes, update.TotalBytes)
	})

	result, err := dl.Run(ctx, it.SourceURL)
	if err != nil {
		return nil, err
	}

	var files []string
	infos, err := result.GetExtractedInfo()
	if err != nil {
		zlog.Debug().Err(err).Msgf("no extracted info: id=%s", it.ID)
		return nil, nil
	}
	for _, info := range infos {
		if info.Filename != nil && *info.Filename != "" {
			files = append(files, audioPath(*info.Filename, it.Format))
		}
	}
	return files, nil
}

// AudioFormat maps an item format onto yt-dlp's --audio-format value.
func AudioFormat(f item.Format) string {
	switch f {
	case item.FormatFLAC:
		return "flac"
	case item.FormatOGG:
		return "vorbis"
	default:
		return "mp3"
	}
}

// AudioQuality maps an item quality onto yt-dlp's --audio-quality value (0 best, 10 worst).
func AudioQuality(q item.Quality) string {
	switch q {
	case item.QualityLow:
		return "9"
	case item.QualityMedium:
		return "5"
	default:
		return "0"
	}
}

// audioPath returns the post-extraction path: yt-dlp reports the downloaded
// container, the extracted file carries the target extension.
func audioPath(path string, f item.Format) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + string(f)
}

// summarize returns the first line of an error, truncated.
func summarize(err error) string {
	msg := strings.TrimSpace(err.Error())
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = strings.TrimSpace(msg[:i])
	}
	if r := []rune(msg); len(r) > maxReasonLen {
		msg = string(r[:maxReasonLen]) + "..."
	}
	if msg == "" {
		return "download failed"
	}
	return msg
}
