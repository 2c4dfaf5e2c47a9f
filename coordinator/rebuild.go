package coordinator

import (
	"context"
	"time"

	"github.com/cybozu-go/log"
	"github.com/pkg/errors"

	"github.com/weeklypack/pagepackd/fetch"
	"github.com/weeklypack/pagepackd/page"
	"github.com/weeklypack/pagepackd/store"
)

// rebuild performs the actual fetch-normalize-hash pipeline. The domain
// lock is already held by the caller.
func (c *Coordinator) rebuild(domain string, pages []PageRequest, opts Options, nowTime time.Time) (Result, error) {
	now := timestamp(nowTime)

	f := fetch.New(time.Duration(opts.TimeoutSeconds) * time.Second)
	pacer := fetch.NewPacer(opts.RateLimitMs)
	ctx := context.Background()

	var (
		unchanged []string
		packPages []page.Page
		fetchErrs []FetchError
	)
	shouldSavePack := !opts.ClientHasPack

	for _, pr := range pages {
		if err := pacer.Wait(ctx); err != nil {
			return Result{}, errors.Wrap(err, "pacer wait")
		}

		meta, err := c.Metadata.Get(domain, pr.URL)
		if err == store.ErrNotFound {
			meta = nil
		} else if err != nil {
			return Result{}, errors.Wrap(err, "get metadata")
		}
		v := page.Merge(meta, pr.ETag, pr.LastModified, pr.LastTextHash)

		outcome, err := f.Get(pr.URL, fetch.Validators{ETag: v.ETag, LastModified: v.LastModified})
		if err != nil {
			fetchErrs = append(fetchErrs, classifyError(pr.URL, err))
			continue
		}

		if outcome.NotModified {
			unchanged = append(unchanged, pr.URL)

			priorPackHash := ""
			if meta != nil {
				priorPackHash = meta.PackHash
			}
			if err := c.Metadata.Upsert(store.UpsertInput{
				Domain:        domain,
				URL:           pr.URL,
				PackHash:      priorPackHash,
				ETag:          v.ETag,
				LastModified:  v.LastModified,
				TextHash:      v.TextHash,
				LastCheckedAt: now,
			}, now); err != nil {
				return Result{}, errors.Wrap(err, "upsert metadata on 304")
			}

			if opts.ClientHasPack {
				shouldSavePack = false
				continue
			}

			outcome, err = f.Get(pr.URL, fetch.Validators{})
			if err != nil {
				fetchErrs = append(fetchErrs, classifyError(pr.URL, err))
				continue
			}
		}

		normalized := page.Normalize(outcome.BodyText)
		textHash := page.TextHash(normalized)
		title := page.Title(outcome.BodyText)
		fetchedAt := timestamp(c.now())

		if v.TextHash != "" && v.TextHash == textHash {
			unchanged = append(unchanged, pr.URL)
		}

		packPages = append(packPages, page.Page{
			URL:            pr.URL,
			Title:          title,
			NormalizedText: normalized,
			TextHash:       textHash,
			ETag:           outcome.ETag,
			LastModified:   outcome.LastModified,
			FetchedAt:      fetchedAt,
		})
	}

	packHash := page.Hash(packPages)
	expiresAt := timestamp(NextSunday(nowTime))

	for _, p := range packPages {
		if err := c.Metadata.Upsert(store.UpsertInput{
			Domain:        domain,
			URL:           p.URL,
			PackHash:      packHash,
			ETag:          p.ETag,
			LastModified:  p.LastModified,
			TextHash:      p.TextHash,
			LastCheckedAt: now,
		}, now); err != nil {
			return Result{}, errors.Wrap(err, "upsert metadata after rebuild")
		}
	}

	if shouldSavePack && len(packPages) > 0 {
		if err := c.Packs.Save(domain, packPages, packHash, now, expiresAt); err != nil {
			return Result{}, errors.Wrap(err, "save pack")
		}
		log.Info("saved pack", map[string]interface{}{
			"_domain": domain,
			"_pages":  len(packPages),
		})
	}

	return Result{
		CacheHit:      false,
		Pages:         packPages,
		UnchangedURLs: unchanged,
		Errors:        fetchErrs,
	}, nil
}

// classifyError turns a fetch-path error into the response's error
// shape. Network and HTTP-status failures are per-page and never fatal
// to the whole request.
func classifyError(url string, err error) FetchError {
	return FetchError{URL: url, Error: err.Error()}
}
