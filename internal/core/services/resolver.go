package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/core/ports/driving"
	"github.com/custodia-labs/sentinela/internal/identity"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure Resolver implements the interface.
var _ driving.EntityLookup = (*Resolver)(nil)

// entityNamespace seeds deterministic entity ids.
var entityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sentinela:canonical-entity"))

// nameNamespace prefixes the surrogate of sightings carrying neither an
// identifier nor a disambiguator.
const nameNamespace = "name"

// attrRawIdentifier keeps an identifier that failed validation.
const attrRawIdentifier = "raw_identifier"

// ResolverOptions tunes the fuzzy relationship path.
type ResolverOptions struct {
	CommonSurnames      []string
	MinSurnameLength    int
	SimilarityThreshold float64
}

// DefaultResolverOptions returns the default fuzzy-path settings.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		CommonSurnames:      identity.DefaultCommonSurnames,
		MinSurnameLength:    5,
		SimilarityThreshold: 0.93,
	}
}

// Resolution is the outcome of resolving one observation.
type Resolution struct {
	Entity    *domain.CanonicalEntity
	Created   bool
	Upgraded  bool
	EventsNew int
}

// Resolver merges observations into canonical entities.
//
// Matching runs in priority order: full identifier, partial identifier with
// an equal name, source surrogate, then composite resolution key. A stronger
// identifier found for a matched entity upgrades it in place.
type Resolver struct {
	store    driven.EntityStore
	surnames *identity.SurnameMatcher
	now      func() time.Time
	log      *slog.Logger

	// identityMu serialises match-or-create so concurrent sources never
	// create the same entity twice.
	identityMu sync.Mutex
	locks      *keyedMutex
}

// NewResolver creates a resolver over an entity store.
func NewResolver(store driven.EntityStore, opts ResolverOptions) *Resolver {
	if opts.MinSurnameLength <= 0 {
		opts.MinSurnameLength = DefaultResolverOptions().MinSurnameLength
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultResolverOptions().SimilarityThreshold
	}
	return &Resolver{
		store:    store,
		surnames: identity.NewSurnameMatcher(opts.CommonSurnames, opts.MinSurnameLength, opts.SimilarityThreshold),
		now:      time.Now,
		log:      logger.For("resolver"),
		locks:    newKeyedMutex(),
	}
}

// sighting is an observation's subject with identity fields normalised.
type sighting struct {
	obs   *domain.Observation
	kind  domain.EntityKind
	id    domain.Identifier
	seq   domain.Identifier
	name  string
	key   string
	attrs map[string]string
}

func (r *Resolver) sight(obs *domain.Observation) sighting {
	s := sighting{
		obs:   obs,
		kind:  obs.Kind,
		name:  identity.NormalizeName(obs.Name),
		attrs: maps.Clone(obs.Attributes),
	}
	if s.attrs == nil {
		s.attrs = map[string]string{}
	}
	if s.kind == "" {
		s.kind = domain.EntityPerson
	}
	if obs.RawIdentifier != "" {
		id, kind, err := identity.NormalizeAnyID(obs.RawIdentifier)
		if err != nil {
			r.log.Debug("identifier failed validation",
				"source", obs.SourceID, "raw", obs.RawIdentifier, "error", err)
			s.attrs[attrRawIdentifier] = obs.RawIdentifier
		} else {
			s.id = id
			if id.IsFull() {
				s.kind = kind
			}
		}
	}
	if obs.SequentialID != "" {
		s.seq = domain.Identifier{Kind: domain.IdentifierSequential, Value: obs.SequentialID}
	}
	s.key = domain.ResolutionKey(s.name, obs.Disambiguator)
	if s.id.IsZero() && s.seq.IsZero() && s.key == "" && s.name != "" {
		s.seq = domain.SequentialIdentifier(nameNamespace, string(s.kind)+":"+s.name)
	}
	return s
}

// Resolve merges one observation, its counterparts, snapshot, events and
// relationships. It returns the subject's entity.
func (r *Resolver) Resolve(ctx context.Context, obs domain.Observation) (*Resolution, error) {
	res, err := r.resolveSubject(ctx, &obs)
	if err != nil {
		return nil, err
	}
	entity := res.Entity

	if obs.Snapshot != nil {
		if err := r.attachSnapshot(ctx, entity.ID, obs.SourceID, *obs.Snapshot); err != nil {
			return nil, err
		}
	}

	recipient := ""
	for _, rel := range obs.Related {
		counterpart, err := r.resolveSubject(ctx, &rel.Counterpart)
		if err != nil {
			return nil, fmt.Errorf("resolve %s counterpart: %w", rel.Type, err)
		}
		link := domain.Relationship{
			FromID:     entity.ID,
			ToID:       counterpart.Entity.ID,
			Type:       rel.Type,
			Attributes: rel.Attributes,
			SourceID:   obs.SourceID,
		}
		if rel.Reverse {
			link.FromID, link.ToID = link.ToID, link.FromID
		}
		if link.FromID == link.ToID {
			continue
		}
		if err := r.store.PutRelationship(ctx, link); err != nil {
			return nil, fmt.Errorf("put relationship: %w", err)
		}
		if rel.BindEvents {
			recipient = counterpart.Entity.ID
		}
	}

	for _, ev := range obs.Events {
		ev.EntityID = entity.ID
		if ev.SourceID == "" {
			ev.SourceID = obs.SourceID
		}
		if recipient != "" {
			ev.Attributes = maps.Clone(ev.Attributes)
			if ev.Attributes == nil {
				ev.Attributes = map[string]string{}
			}
			ev.Attributes[domain.EvAttrRecipientID] = recipient
		}
		inserted, err := r.store.AppendEvent(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
		if inserted {
			res.EventsNew++
		}
	}
	return res, nil
}

// resolveSubject matches or creates the entity for one sighting.
func (r *Resolver) resolveSubject(ctx context.Context, obs *domain.Observation) (*Resolution, error) {
	s := r.sight(obs)
	if s.id.IsZero() && s.seq.IsZero() && s.key == "" {
		return nil, fmt.Errorf("%w: observation from %s has no name or identifier", domain.ErrValidation, obs.SourceID)
	}

	r.identityMu.Lock()
	defer r.identityMu.Unlock()

	entity, err := r.match(ctx, s)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		entity, err = r.create(ctx, s)
		if err != nil {
			return nil, err
		}
		return &Resolution{Entity: entity, Created: true}, nil
	}

	unlock := r.locks.Lock(entity.ID)
	defer unlock()

	upgraded, err := r.merge(ctx, entity, s)
	if err != nil {
		return nil, err
	}
	return &Resolution{Entity: entity, Upgraded: upgraded}, nil
}

// match returns the entity a sighting belongs to, or nil.
func (r *Resolver) match(ctx context.Context, s sighting) (*domain.CanonicalEntity, error) {
	if s.id.IsFull() {
		e, err := r.find(ctx, s.id)
		if err != nil || e != nil {
			return e, err
		}
	}

	if s.id.Kind == domain.IdentifierPartial {
		e, err := r.find(ctx, s.id)
		if err != nil {
			return nil, err
		}
		if e != nil && (e.CanonicalName == "" || s.name == "" || e.CanonicalName == s.name) {
			return e, nil
		}
	}

	if !s.seq.IsZero() {
		e, err := r.find(ctx, s.seq)
		if err != nil {
			return nil, err
		}
		if e != nil && e.Identifier.CompatibleWith(s.id) {
			return e, nil
		}
	}

	if s.key == "" {
		return nil, nil
	}
	candidates, err := r.store.FindByResolutionKey(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("find by resolution key: %w", err)
	}
	var compatible []domain.CanonicalEntity
	var ids []string
	for _, c := range candidates {
		ids = append(ids, c.ID)
		if c.Kind == s.kind && c.Identifier.CompatibleWith(s.id) {
			compatible = append(compatible, c)
		}
	}
	if len(compatible) == 1 {
		return &compatible[0], nil
	}
	if len(candidates) > 0 {
		r.ambiguous(ctx, s, ids)
	}
	return nil, nil
}

func (r *Resolver) find(ctx context.Context, id domain.Identifier) (*domain.CanonicalEntity, error) {
	e, err := r.store.FindByIdentifier(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by identifier: %w", err)
	}
	return e, nil
}

// ambiguous logs that a composite key matched entities that cannot be told
// apart. The sighting becomes a distinct entity.
func (r *Resolver) ambiguous(ctx context.Context, s sighting, candidates []string) {
	r.log.Warn("ambiguous merge kept distinct",
		"source", s.obs.SourceID,
		"resolution_key", s.key,
		"identifier", s.id.String(),
		"candidates", candidates,
	)
	d := domain.Decision{
		Kind:          domain.DecisionAmbiguousMerge,
		CandidateIDs:  candidates,
		ResolutionKey: s.key,
		Current:       s.id,
		SourceID:      s.obs.SourceID,
		CreatedAt:     r.now().UTC(),
	}
	if err := r.store.LogDecision(ctx, d); err != nil {
		r.log.Error("log decision failed", "error", err)
	}
}

// create stores a new entity. Its id derives from the strongest identity the
// sighting carries.
func (r *Resolver) create(ctx context.Context, s sighting) (*domain.CanonicalEntity, error) {
	now := r.now().UTC()
	e := &domain.CanonicalEntity{
		Kind:          s.kind,
		CanonicalName: s.name,
		Attributes:    s.attrs,
		ResolutionKey: s.key,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch {
	case !s.id.IsZero():
		e.Identifier = s.id
		e.AddAlias(s.seq)
	case !s.seq.IsZero():
		e.Identifier = s.seq
	}

	seed := e.Identifier.Key()
	if seed == "" {
		seed = "key:" + s.key
	}
	id, err := r.freeID(ctx, string(s.kind)+"|"+seed)
	if err != nil {
		return nil, err
	}
	e.ID = id
	if err := r.store.Save(ctx, *e); err != nil {
		return nil, fmt.Errorf("save entity: %w", err)
	}
	return e, nil
}

// freeID derives a deterministic id from seed, suffixing a counter while the
// id is taken.
func (r *Resolver) freeID(ctx context.Context, seed string) (string, error) {
	for n := 0; ; n++ {
		name := seed
		if n > 0 {
			name += "#" + strconv.Itoa(n)
		}
		id := uuid.NewSHA1(entityNamespace, []byte(name)).String()
		_, err := r.store.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("get entity: %w", err)
		}
	}
}

// merge folds a sighting into a matched entity and saves it. It reports
// whether the identifier was upgraded.
func (r *Resolver) merge(ctx context.Context, e *domain.CanonicalEntity, s sighting) (bool, error) {
	upgraded := false
	previous := e.Identifier

	switch {
	case s.id.IsZero():
	case e.Identifier.IsZero():
		e.Identifier = s.id
	case s.id.Outranks(e.Identifier) && e.Identifier.CompatibleWith(s.id):
		e.Identifier = s.id
		e.AddAlias(previous)
		upgraded = true
	default:
		e.AddAlias(s.id)
	}
	e.AddAlias(s.seq)

	if e.CanonicalName == "" {
		e.CanonicalName = s.name
	}
	if e.ResolutionKey == "" {
		e.ResolutionKey = s.key
	}
	if e.Attributes == nil {
		e.Attributes = map[string]string{}
	}
	for k, v := range s.attrs {
		if v != "" {
			e.Attributes[k] = v
		}
	}
	if upgraded {
		delete(e.Attributes, attrRawIdentifier)
	}
	e.UpdatedAt = r.now().UTC()

	if err := r.store.Save(ctx, *e); err != nil {
		return false, fmt.Errorf("save entity: %w", err)
	}
	if upgraded {
		r.log.Info("identifier upgraded",
			"entity", e.ID, "from", previous.String(), "to", e.Identifier.String(), "source", s.obs.SourceID)
		d := domain.Decision{
			Kind:          domain.DecisionIdentifierUpgrade,
			EntityID:      e.ID,
			ResolutionKey: e.ResolutionKey,
			Previous:      previous,
			Current:       e.Identifier,
			SourceID:      s.obs.SourceID,
			CreatedAt:     e.UpdatedAt,
		}
		if err := r.store.LogDecision(ctx, d); err != nil {
			return true, fmt.Errorf("log decision: %w", err)
		}
	}
	return upgraded, nil
}

// attachSnapshot stores a snapshot value. Itemised parts replace their own
// component; whole values replace the period.
func (r *Resolver) attachSnapshot(ctx context.Context, entityID, sourceID string, obs domain.ObservedSnapshot) error {
	unlock := r.locks.Lock(entityID)
	defer unlock()

	snap := domain.Snapshot{EntityID: entityID, Period: obs.Period}
	if obs.Part != "" {
		existing, err := r.store.Snapshots(ctx, entityID)
		if err != nil {
			return fmt.Errorf("get snapshots: %w", err)
		}
		for _, s := range existing {
			if s.Period == obs.Period {
				snap.Parts = maps.Clone(s.Parts)
				break
			}
		}
		snap.SetPart(obs.Part, obs.Value)
	} else {
		snap.DeclaredValue = obs.Value
	}
	snap.SourceID = sourceID
	snap.CapturedAt = r.now().UTC()
	if err := r.store.PutSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// Get returns an entity by ID.
func (r *Resolver) Get(ctx context.Context, id string) (*domain.CanonicalEntity, error) {
	return r.store.Get(ctx, id)
}

// FindByKey returns entities sharing the composite key of a raw name and disambiguator.
func (r *Resolver) FindByKey(ctx context.Context, name, disambiguator string) ([]domain.CanonicalEntity, error) {
	key := domain.ResolutionKey(identity.NormalizeName(name), disambiguator)
	if key == "" {
		return nil, fmt.Errorf("%w: name and disambiguator are required", domain.ErrInvalidInput)
	}
	return r.store.FindByResolutionKey(ctx, key)
}

// FindByIdentifier normalises a raw identifier and returns its holder.
func (r *Resolver) FindByIdentifier(ctx context.Context, raw string) (*domain.CanonicalEntity, error) {
	id, _, err := identity.NormalizeAnyID(raw)
	if err != nil {
		return nil, err
	}
	return r.store.FindByIdentifier(ctx, id)
}

// Decisions returns the decision log, newest first.
func (r *Resolver) Decisions(ctx context.Context, limit int) ([]domain.Decision, error) {
	return r.store.Decisions(ctx, limit)
}

// SuggestRelationships compares surnames of public employees with those of
// company partners. Hints are returned, never merged.
func (r *Resolver) SuggestRelationships(ctx context.Context) ([]domain.RelationshipHint, error) {
	entities, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	byID := make(map[string]domain.CanonicalEntity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	events, err := r.store.Events(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	employees := map[string]bool{}
	for _, ev := range events {
		if ev.Type == domain.EventPayroll {
			employees[ev.EntityID] = true
		}
	}

	rels, err := r.store.Relationships(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	partners := map[string]string{}
	for _, rel := range rels {
		if rel.Type == domain.RelPartnerOf {
			partners[rel.FromID] = rel.ToID
		}
	}

	// Bucket partners by the first letter of their surname.
	buckets := map[rune][]domain.CanonicalEntity{}
	for id := range partners {
		p, ok := byID[id]
		if !ok || p.Kind != domain.EntityPerson {
			continue
		}
		if s := identity.LastSurname(p.CanonicalName); s != "" {
			first := []rune(s)[0]
			buckets[first] = append(buckets[first], p)
		}
	}

	var hints []domain.RelationshipHint
	for _, e := range entities {
		if !employees[e.ID] {
			continue
		}
		surname := identity.LastSurname(e.CanonicalName)
		if !r.surnames.Eligible(surname) {
			continue
		}
		for _, p := range buckets[[]rune(surname)[0]] {
			if p.ID == e.ID {
				continue
			}
			sim, ok := r.surnames.Match(e.CanonicalName, p.CanonicalName)
			if !ok {
				continue
			}
			hints = append(hints, domain.RelationshipHint{
				FromID:     e.ID,
				ToID:       p.ID,
				Reason:     fmt.Sprintf("surname %s shared with a partner of %s", surname, byID[partners[p.ID]].CanonicalName),
				Similarity: sim,
			})
		}
	}
	return hints, nil
}

// keyedMutex hands out one mutex per key and frees it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock locks key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
