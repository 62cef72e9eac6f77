package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbanscope/harvester/internal/eutils"
	"github.com/urbanscope/harvester/internal/export"
)

const sourceDB = "sra"

func (p *Pipeline) debugDir() string {
	return filepath.Join(p.cfg.Paths.DataDir, "debug")
}

func (p *Pipeline) newReporter(tag string) *Reporter {
	return NewReporter(tag, p.debugDir(), p.cfg.Harvest.Debug)
}

// Daily harvests entries published in the trailing recent-days window,
// commits them, and republishes the artifact set. The report is
// emitted even when the window yields nothing.
func (p *Pipeline) Daily(ctx context.Context) (Report, error) {
	tag := "daily_" + time.Now().UTC().Format("20060102")
	rep := p.newReporter(tag)

	window := eutils.Window{RelDateDays: p.cfg.Harvest.RecentDays, DateType: "pdat"}
	uids, err := p.client.Search(ctx, sourceDB, p.cfg.Harvest.Query, window, p.cfg.Harvest.MaxPerCall)
	if err != nil {
		return rep.Finalize(), eris.Wrap(err, "pipeline: daily search")
	}

	emitted, err := p.IngestBatch(ctx, rep, uids)
	if err != nil {
		return rep.Finalize(), err
	}
	if err := p.Publish(); err != nil {
		return rep.Finalize(), err
	}
	zap.S().Infow("daily harvest finished", "tag", tag, "uids", len(uids), "emitted", len(emitted))
	return rep.Finalize(), nil
}

// BackfillYear walks every calendar day of year with a bounded search
// window, committing after each day so an interrupted backfill resumes
// where it stopped.
func (p *Pipeline) BackfillYear(ctx context.Context, year int) (Report, error) {
	tag := fmt.Sprintf("backfill_%d", year)
	rep := p.newReporter(tag)

	day := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := day.AddDate(1, 0, 0)
	for day.Before(end) {
		if err := ctx.Err(); err != nil {
			return rep.Finalize(), err
		}
		stamp := day.Format("2006/01/02")
		window := eutils.Window{MinDate: stamp, MaxDate: stamp, DateType: "pdat"}
		uids, err := p.client.Search(ctx, sourceDB, p.cfg.Harvest.Query, window, p.cfg.Harvest.MaxPerCall)
		if err != nil {
			return rep.Finalize(), eris.Wrapf(err, "pipeline: backfill search %s", stamp)
		}
		if len(uids) > 0 {
			if _, err := p.IngestBatch(ctx, rep, uids); err != nil {
				return rep.Finalize(), err
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	if err := p.Publish(); err != nil {
		return rep.Finalize(), err
	}
	return rep.Finalize(), nil
}

// CrawlOptions bound a full-catalog crawl. MaxTotal caps examined
// entries (0 = entire result set). StopAfterIdle stops the crawl after
// that many consecutive pages emit no new records (0 = never).
type CrawlOptions struct {
	PageSize      int
	MaxTotal      int
	StopAfterIdle int
}

// Crawl pages through the whole catalog result set with retstart
// offsets, committing page by page.
func (p *Pipeline) Crawl(ctx context.Context, opts CrawlOptions) (Report, error) {
	tag := "crawl_" + time.Now().UTC().Format("20060102")
	rep := p.newReporter(tag)

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = p.cfg.Harvest.MaxPerCall
	}

	offset, examined, idlePages := 0, 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return rep.Finalize(), err
		}
		page := eutils.Page{RetStart: offset, RetMax: pageSize, Sort: "recently_added"}
		uids, total, err := p.client.SearchPage(ctx, sourceDB, p.cfg.Harvest.Query, page)
		if err != nil {
			return rep.Finalize(), eris.Wrapf(err, "pipeline: crawl page at %d", offset)
		}
		if len(uids) == 0 {
			break
		}

		emitted, err := p.IngestBatch(ctx, rep, uids)
		if err != nil {
			return rep.Finalize(), err
		}
		if len(emitted) == 0 {
			idlePages++
		} else {
			idlePages = 0
		}

		offset += len(uids)
		examined += len(uids)
		zap.S().Infow("crawl page done",
			"offset", offset, "total", total, "emitted", len(emitted), "idle_pages", idlePages)

		if offset >= total {
			break
		}
		if opts.MaxTotal > 0 && examined >= opts.MaxTotal {
			zap.S().Infow("crawl stopped at max-total", "examined", examined)
			break
		}
		if opts.StopAfterIdle > 0 && idlePages >= opts.StopAfterIdle {
			zap.S().Infow("crawl stopped after idle pages", "idle_pages", idlePages)
			break
		}
	}

	if err := p.Publish(); err != nil {
		return rep.Finalize(), err
	}
	return rep.Finalize(), nil
}

// Publish regenerates the chunked artifact set, the bounded latest
// view, and the cache snapshot documents from the committed corpus.
func (p *Pipeline) Publish() error {
	rb := export.NewRebuilder(p.cat, p.cfg.Paths.DocsDir, p.cfg.Export.MaxOutputBytes)
	if _, err := rb.Rebuild(); err != nil {
		return err
	}

	items, err := rb.RecentItems(p.cfg.Export.LatestMaxItems)
	if err != nil {
		return err
	}
	// Newest first for the dashboard.
	reverseItems(items)
	latestPath := filepath.Join(p.cfg.Paths.DocsDir, "db", "latest.json")
	if err := export.WriteLatestBounded(latestPath, items, p.cfg.Export.MaxOutputBytes); err != nil {
		return err
	}

	if err := rb.PublishCacheSnapshot("bioprojects", p.caches.Project.Snapshot()); err != nil {
		return err
	}
	return rb.PublishCacheSnapshot("biosamples", p.caches.Sample.Snapshot())
}

func reverseItems(items []export.LatestItem) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

// Status summarizes the persistent state for the status command.
type Status struct {
	SeenRuns     int   `json:"seen_runs"`
	SeenProjects int   `json:"seen_projects"`
	Samples      int   `json:"biosample_cache"`
	Projects     int   `json:"bioproject_cache"`
	CatalogRows  int   `json:"catalog_rows"`
	CatalogYears []int `json:"catalog_years"`
}

func (p *Pipeline) Status() (Status, error) {
	rows, err := p.cat.Count()
	if err != nil {
		return Status{}, err
	}
	years, err := p.cat.Years()
	if err != nil {
		return Status{}, err
	}
	return Status{
		SeenRuns:     p.led.Runs.Len(),
		SeenProjects: p.led.Projects.Len(),
		Samples:      p.caches.Sample.Len(),
		Projects:     p.caches.Project.Len(),
		CatalogRows:  rows,
		CatalogYears: years,
	}, nil
}
