package scout

import (
	"context"
	"errors"
	"fmt"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/adapters"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/cache"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/enrich"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geometry"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/gis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/httpclient"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/leadbook"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/parceldb"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/planner"
)

// Runtime is a configured service plus the process-wide state the
// maintenance jobs need.
type Runtime struct {
	Service   *Service
	Responses *cache.ResponseCache
	Counts    *cache.Counts
	Cache     *cache.EnrichmentCache

	store *parceldb.Store
	log   *logger.Logger
}

// Open builds the service from cfg. Optional sources that fail to come up
// are logged and left out.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.Discard()
	}
	hc := httpclient.New(cfg.Retry, log)
	client := arcgis.NewClient(hc)
	lim := cfg.Limits

	cities := geometry.DefaultCityCatalog()
	resolver := geometry.NewResolver(client, geometry.Layers{
		Address:      cfg.Upstreams.AddressLayer,
		Zip:          cfg.Upstreams.ZipLayer,
		Neighborhood: cfg.Upstreams.NeighborhoodLayer,
		Subdivision:  cfg.Upstreams.SubdivisionLayer,
		NativeWKID:   cfg.Upstreams.NativeWKID,
	}, cities, cache.NewGeometryCache(), lim.MunicipalWidth, log)

	responses := cache.NewResponseCache(cfg.Cache.VolatileTTL)
	// Assessor rolls change once a year.
	responses.SetTTL(adapters.SourceParcels, cache.Forever)

	counts, err := cache.LoadCounts(cfg.Cache.CountsPath)
	if err != nil {
		return nil, err
	}

	ec := cache.NewEnrichmentCache()
	if cfg.Cache.WarmFile != "" {
		n, err := cache.WarmFromFile(ctx, cfg.Cache.WarmFile, ec)
		if err != nil {
			log.Warn("failed to warm enrichment cache", "file", cfg.Cache.WarmFile, "err", err)
		} else {
			log.Info("enrichment cache warmed", "file", cfg.Cache.WarmFile, "leads", n)
		}
	}

	parcels := adapters.NewParcels(client, cfg.Upstreams.ParcelLayer, lim.BatchSize, log)
	pd := planner.Deps{
		Parcels:   parcels,
		Responses: responses,
		Counts:    counts,
		Resolver:  resolver,
		Limits:    lim,
		Log:       log,
	}
	ed := enrich.Deps{
		Cache:   ec,
		Parcels: parcels,
		Layers:  gis.Standard(cfg, client, log),
		Limits:  lim,
		Log:     log,
	}
	sd := Deps{
		Resolver: resolver,
		Parcels:  parcels,
		Cache:    ec,
		Limits:   lim,
		Log:      log,
	}

	if cfg.Upstreams.ViolationLayer != "" {
		pd.Violations = adapters.NewViolations(client, cfg.Upstreams.ViolationLayer, cfg.Municipality, cities, lim.MunicipalWidth, lim.FetchCap, log)
	}
	if cfg.Upstreams.ListingURL != "" {
		listings := adapters.NewListings(hc, cfg.Upstreams.ListingURL, lim.ListingWidth, log)
		pd.Listings = listings
		ed.Listings = listings
	}
	if cfg.Upstreams.RecorderURL != "" {
		rec, err := adapters.NewRecorderClient(cfg.Upstreams.RecorderURL, cfg.Recorder.CookieJarPath, cfg.Retry, log)
		if err != nil {
			log.Warn("recorder unavailable", "err", err)
		} else {
			pd.Recorder = adapters.NewRecorderAdapter(rec, lim.RecorderInterval, log)
		}
	}
	if cfg.Upstreams.ZipLayer != "" {
		ed.Zips = adapters.NewZips(client, cfg.Upstreams.ZipLayer)
	}

	rt := &Runtime{Responses: responses, Counts: counts, Cache: ec, log: log}
	if cfg.Database.Enabled() {
		store, err := parceldb.Open(ctx, cfg.Database)
		if err != nil {
			log.Warn("parcel snapshot unavailable", "host", cfg.Database.Host, "err", err)
		} else {
			rt.store = store
			pd.Comps = store
			ed.Snapshot = store
			sd.Snapshot = store
		}
	}

	if cfg.Upstreams.BLSURL != "" || cfg.Upstreams.CensusURL != "" || cfg.Upstreams.FREDURL != "" {
		sd.Market = adapters.NewMarket(hc, cfg.Upstreams, cfg.Keys, adapters.PimaCounty)
	}
	if cfg.LeadBookPath != "" {
		book, err := leadbook.Load(cfg.LeadBookPath)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to open lead book: %w", err)
		}
		sd.Book = book
	}

	sd.Planner = planner.New(pd)
	sd.Engine = enrich.New(ed)
	rt.Service = New(sd)
	log.Info("scout ready",
		"violations", pd.Violations != nil,
		"listings", pd.Listings != nil,
		"recorder", pd.Recorder != nil,
		"snapshot", rt.store != nil,
		"market", sd.Market != nil,
		"lead_book", sd.Book != nil,
		"warm_leads", ec.Len())
	return rt, nil
}

// Prune drops expired upstream responses.
func (r *Runtime) Prune() int {
	n := r.Responses.Prune()
	if n > 0 {
		r.log.Debug("response cache pruned", "removed", n, "remaining", r.Responses.Len())
	}
	return n
}

// Flush writes the record-count estimates.
func (r *Runtime) Flush() error {
	return r.Counts.Flush()
}

// Close flushes the counts file and closes the parcel snapshot.
func (r *Runtime) Close() error {
	var errs []error
	if err := r.Counts.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush counts: %w", err))
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close parcel snapshot: %w", err))
		}
		r.store = nil
	}
	return errors.Join(errs...)
}
