package extract

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"igleads/pkg/config"
	errs "igleads/pkg/errors"
	"igleads/pkg/instagram"
	"igleads/pkg/leadstore"
	"igleads/pkg/logger"
	"igleads/pkg/models"
	"igleads/pkg/navigation"
)

// Navigator loads pages through the navigation guard
type Navigator interface {
	Goto(ctx context.Context, url string) (*navigation.Result, error)
}

// Request names a profile and the context it was found in
type Request struct {
	Username      string
	SourceHashtag string
	// PostHashtags are the tags of the post that led to the profile
	PostHashtags []string
}

// Outcome is the result of running one profile through the pipeline
type Outcome struct {
	Username string
	Accepted bool
	Reason   string
	Verdict  Verdict
	Lead     *models.Lead
}

// Phase names a step a profile enters after its page is loaded
type Phase string

const (
	PhaseValidating Phase = "validating"
	PhasePersisting Phase = "persisting"
)

// PhaseObserver is called as a profile enters each phase. An error stops
// the profile before the phase runs.
type PhaseObserver func(Phase) error

// Pipeline loads a profile, extracts its fields, applies the gates and
// persists accepted leads
type Pipeline struct {
	nav     Navigator
	store   leadstore.Store
	gates   *Gates
	cfg     config.ValidationConfig
	logger  logger.Logger
	now     func() time.Time
	observe PhaseObserver
}

// NewPipeline creates a profile pipeline
func NewPipeline(nav Navigator, store leadstore.Store, cfg config.ValidationConfig, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{
		nav:    nav,
		store:  store,
		gates:  NewGates(cfg),
		cfg:    cfg,
		logger: log.WithField("component", "extract"),
		now:    time.Now,
	}
}

// SetClock replaces the time source used for activity scoring
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// SetPhaseObserver registers fn to be told when a profile enters a phase
func (p *Pipeline) SetPhaseObserver(fn PhaseObserver) {
	p.observe = fn
}

func (p *Pipeline) enter(phase Phase) error {
	if p.observe == nil {
		return nil
	}
	return p.observe(phase)
}

// Process visits the profile and runs it through extraction and the gates.
// A profile with no posts still goes through the gates; a missing profile is
// rejected as unavailable. Other navigation errors are returned unchanged so
// the caller can apply its recovery policy.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Outcome, error) {
	username := instagram.SanitizeUsername(req.Username)
	if !instagram.IsValidUsername(username) {
		return nil, fmt.Errorf("invalid username %q", req.Username)
	}
	req.Username = username

	res, err := p.nav.Goto(ctx, instagram.ProfileURL(username))
	if err != nil {
		if errs.Is(err, errs.KindNoResults) && res != nil && res.Outcome == navigation.OutcomeNoResults {
			// a profile without posts is still a profile
			return p.ProcessPage(ctx, req, res.HTML)
		}
		if errs.Is(err, errs.KindNoResults) {
			out := &Outcome{Username: username, Reason: ReasonUnavailable}
			logger.LogProfileDecision(p.logger, username, false, out.Reason)
			return out, nil
		}
		return nil, err
	}
	return p.ProcessPage(ctx, req, res.HTML)
}

// ProcessPage runs an already loaded profile page through the pipeline
func (p *Pipeline) ProcessPage(ctx context.Context, req Request, page string) (*Outcome, error) {
	raw, err := ParseProfile(page, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", req.Username, err)
	}

	lead := p.Build(raw, req)
	if err := p.enter(PhaseValidating); err != nil {
		return nil, err
	}
	verdict := p.gates.Evaluate(lead.Bio, lead.Contact.Website, raw.PostTimestamps, p.now())
	lead.Language = verdict.Language
	lead.ActivityScore = verdict.ActivityScore
	lead.IsActive = verdict.IsActive
	lead.AutoApproved = verdict.AutoApproved

	out := &Outcome{
		Username: raw.Username,
		Accepted: verdict.Accepted,
		Reason:   verdict.Reason,
		Verdict:  verdict,
	}
	logger.LogProfileDecision(p.logger, raw.Username, verdict.Accepted, verdict.Reason)
	if !verdict.Accepted {
		return out, nil
	}

	if err := p.enter(PhasePersisting); err != nil {
		return nil, err
	}
	merged, err := p.persist(ctx, lead)
	if err != nil {
		return nil, err
	}
	out.Lead = merged
	return out, nil
}

func (p *Pipeline) persist(ctx context.Context, lead models.Lead) (*models.Lead, error) {
	now := p.now()
	lead.NeedsEnrichment = true
	lead.UpdatedAt = now

	if p.store == nil {
		lead.FirstSeenAt = now
		return &lead, nil
	}

	existing, err := p.store.Get(ctx, lead.Username)
	switch {
	case errors.Is(err, leadstore.ErrNotFound):
		lead.FirstSeenAt = now
	case err != nil:
		return nil, fmt.Errorf("failed to load lead %s: %w", lead.Username, err)
	default:
		lead = models.Merge(*existing, lead)
		lead.UpdatedAt = now
	}

	if err := p.store.Upsert(ctx, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// Build assembles a lead from parsed fields. Gate results are filled in by
// the caller.
func (p *Pipeline) Build(raw *Raw, req Request) models.Lead {
	region := p.cfg.DefaultCountryCode
	if region == "" {
		region = "BR"
	}

	contact := models.Contact{
		Email: firstNonEmpty(strings.ToLower(raw.PublicEmail), EmailFromText(raw.Bio)),
	}
	for _, link := range raw.WhatsAppLinks {
		if phone, ok := NormalizePhone(WhatsAppNumber(link), region); ok {
			contact.WhatsApp = phone
			break
		}
	}
	if phone, ok := NormalizePhone(raw.PublicPhone, region); ok {
		contact.Phone = phone
	} else {
		contact.Phone = contact.WhatsApp
	}
	contact.Region = RegionForPhone(contact.Phone)
	if external := unwrapRedirect(raw.ExternalURL); !IsPlaceholderLink(external) {
		contact.Website = external
	}

	location := BioLocation(raw.Bio)
	location.City = firstNonEmpty(raw.City, location.City)
	location.Zip = firstNonEmpty(raw.Zip, location.Zip)
	location.Address = firstNonEmpty(raw.Address, location.Address)
	location.State = firstNonEmpty(location.State, contact.Region)

	postTags := append([]string{}, req.PostHashtags...)
	if req.SourceHashtag != "" {
		postTags = append(postTags, req.SourceHashtag)
	}

	return models.Lead{
		Username:       strings.ToLower(raw.Username),
		FullName:       raw.FullName,
		Bio:            raw.Bio,
		FollowerCount:  raw.Counts.Followers,
		FollowingCount: raw.Counts.Following,
		PostCount:      raw.Counts.Posts,
		Contact:        contact,
		Location:       location,
		HashtagsBio:    models.UnionTags(nil, BioHashtags(raw.Bio)),
		HashtagsPosts:  models.UnionTags(nil, postTags),
		SourceHashtag:  instagram.NormalizeHashtag(req.SourceHashtag),
	}
}

var (
	pinLineRe = regexp.MustCompile(`(?m)^.*(?:📍|(?i:endereço|endereco)\s*:).*$`)
	stateRe   = regexp.MustCompile(`(?:[-/,]\s*|\s)([A-Z]{2})\s*$`)
	cepRe     = regexp.MustCompile(`\b\d{5}-?\d{3}\b`)
)

// BioLocation reads a location line such as "📍 Pinheiros, São Paulo - SP"
func BioLocation(bio string) models.Location {
	var loc models.Location
	line := pinLineRe.FindString(bio)
	if line == "" {
		return loc
	}
	line = strings.TrimSpace(strings.NewReplacer("📍", "", "Endereço:", "", "endereço:", "", "Endereco:", "", "endereco:", "").Replace(line))

	if zip := cepRe.FindString(line); zip != "" {
		loc.Zip = zip
		line = strings.TrimSpace(strings.Replace(line, zip, "", 1))
	}
	if m := stateRe.FindStringSubmatchIndex(line); m != nil {
		loc.State = line[m[2]:m[3]]
		line = strings.TrimSpace(line[:m[0]])
	}
	line = strings.Trim(line, " ,-/")

	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 1:
		loc.City = parts[0]
	case 2:
		loc.Neighborhood, loc.City = parts[0], parts[1]
	default:
		loc.Address = strings.Join(parts[:len(parts)-2], ", ")
		loc.Neighborhood = parts[len(parts)-2]
		loc.City = parts[len(parts)-1]
	}
	return loc
}
