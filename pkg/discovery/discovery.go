// Package discovery expands a seed term into related hashtags worth
// traversing, ranked by volume and relevance.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"igleads/pkg/config"
	errs "igleads/pkg/errors"
	"igleads/pkg/instagram"
	"igleads/pkg/logger"
	"igleads/pkg/models"
	"igleads/pkg/navigation"
)

// SeedScore is the priority given to the seed itself
const SeedScore = 100

// Navigator loads pages through the navigation guard
type Navigator interface {
	Goto(ctx context.Context, url string) (*navigation.Result, error)
}

// VariationStore persists discovered hashtags
type VariationStore interface {
	SaveVariations(ctx context.Context, variations []models.HashtagVariation) error
}

// Engine discovers hashtag variations through top search
type Engine struct {
	nav    Navigator
	store  VariationStore
	cfg    config.DiscoveryConfig
	logger logger.Logger
	now    func() time.Time
}

// NewEngine creates a discovery engine. store may be nil.
func NewEngine(nav Navigator, store VariationStore, cfg config.DiscoveryConfig, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		nav:    nav,
		store:  store,
		cfg:    cfg,
		logger: log.WithField("component", "discovery"),
		now:    time.Now,
	}
}

// Discover returns the seed followed by its best variations. Every
// variation found is persisted, but only those scoring at least
// MinPriorityScore or with more than MinPostCount posts are returned.
// Failures other than a rate limit degrade to the seed alone.
func (e *Engine) Discover(ctx context.Context, seed string) ([]models.HashtagVariation, error) {
	tag := instagram.NormalizeHashtag(seed)
	if tag == "" {
		return nil, fmt.Errorf("invalid hashtag %q", seed)
	}
	seedVar := models.HashtagVariation{
		Hashtag:        tag,
		PriorityScore:  SeedScore,
		VolumeCategory: models.VolumeLow,
		UpdatedAt:      e.now(),
	}
	only := []models.HashtagVariation{seedVar}
	if !e.cfg.Enabled {
		return only, nil
	}
	log := e.logger.WithField("seed", tag)

	res, err := e.nav.Goto(ctx, instagram.TopSearchURL(tag))
	if err != nil {
		if errs.Is(err, errs.KindRateLimited) || ctx.Err() != nil {
			return nil, err
		}
		log.WithError(err).Warn("Hashtag discovery failed, using seed only")
		return only, nil
	}

	resp, err := ParseTopSearch(res.HTML)
	if err != nil {
		log.WithError(err).Warn("Unreadable top search response, using seed only")
		return only, nil
	}

	all := make([]models.HashtagVariation, 0, len(resp.Hashtags))
	seen := map[string]bool{tag: true}
	for _, hit := range resp.Hashtags {
		name := instagram.NormalizeHashtag(hit.Hashtag.Name)
		if name == tag {
			seedVar.PostCount = hit.Hashtag.MediaCount
			seedVar.VolumeCategory = models.CategorizeVolume(hit.Hashtag.MediaCount)
			continue
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		all = append(all, models.HashtagVariation{
			Hashtag:        name,
			PostCount:      hit.Hashtag.MediaCount,
			PriorityScore:  Score(tag, name, hit.Hashtag.MediaCount),
			VolumeCategory: models.CategorizeVolume(hit.Hashtag.MediaCount),
			DiscoveredFrom: tag,
			UpdatedAt:      e.now(),
		})
	}

	if e.store != nil {
		if err := e.store.SaveVariations(ctx, append([]models.HashtagVariation{seedVar}, all...)); err != nil {
			log.WithError(err).Warn("Failed to persist hashtag variations")
		}
	}

	selected := e.filter(all)
	log.InfoWithFields("Hashtag variations discovered", map[string]interface{}{
		"found":    len(all),
		"selected": len(selected),
	})
	return append([]models.HashtagVariation{seedVar}, selected...), nil
}

func (e *Engine) filter(all []models.HashtagVariation) []models.HashtagVariation {
	var out []models.HashtagVariation
	for _, v := range all {
		if v.PriorityScore >= e.cfg.MinPriorityScore || v.PostCount > e.cfg.MinPostCount {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].PostCount > out[j].PostCount
	})
	if e.cfg.MaxVariations > 0 && len(out) > e.cfg.MaxVariations {
		out = out[:e.cfg.MaxVariations]
	}
	return out
}

var volumePoints = map[models.VolumeCategory]float64{
	models.VolumeVeryHigh: 60,
	models.VolumeHigh:     45,
	models.VolumeMedium:   30,
	models.VolumeLow:      10,
}

// Score rates a variation by its volume and how closely it relates to the
// seed. The result is within 0-100.
func Score(seed, tag string, postCount int) float64 {
	return volumePoints[models.CategorizeVolume(postCount)] + relevance(seed, tag)
}

func relevance(seed, tag string) float64 {
	switch {
	case seed == tag:
		return 40
	case strings.HasPrefix(tag, seed) || strings.HasSuffix(tag, seed):
		return 35
	case strings.Contains(tag, seed) || strings.Contains(seed, tag):
		return 25
	case len(seed) >= 4 && len(tag) >= 4 && seed[:4] == tag[:4]:
		return 10
	default:
		return 0
	}
}

// ParseTopSearch decodes the top-search body. Browsers wrap raw JSON in a
// <pre> element; plain bodies are accepted as well.
func ParseTopSearch(page string) (*instagram.TopSearchResponse, error) {
	body := strings.TrimSpace(page)
	if !strings.HasPrefix(body, "{") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
		if err != nil {
			return nil, err
		}
		body = strings.TrimSpace(doc.Find("pre").First().Text())
		if body == "" {
			body = strings.TrimSpace(doc.Find("body").Text())
		}
	}
	if body == "" {
		return nil, fmt.Errorf("empty top search response")
	}

	var resp instagram.TopSearchResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode top search response: %w", err)
	}
	if resp.Status != "" && resp.Status != "ok" {
		return nil, fmt.Errorf("top search status %q", resp.Status)
	}
	return &resp, nil
}
