package common

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
	"github.com/drewfallon/vigil/internal/storage"
)

// MemStore is an in-memory interfaces.StorageManager for service unit tests
// that don't need a SurrealDB container. All stores share one mutex; copies
// go in and out so tests can't alias internal state.
type MemStore struct {
	mu sync.Mutex

	Users       map[string]*models.User
	Sessions    []*models.Session
	Credentials map[string]*models.Credential // userID_venue
	Alerts      map[string]*models.Alert
	Positions   map[string]*models.Position // userID_venue_outcomeID
	Snapshots   []*models.PortfolioSnapshot
	Markets     map[string]*models.Market     // marketID_venue
	Entries     map[string]*models.IndexEntry // marketID_venue
	Embeddings  map[string]*models.Embedding  // marketID_venue
	Jobs        map[string]*models.CronJob
	Triggers    map[string]*models.StopLossTrigger // userID_venue_outcomeID
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		Users:       map[string]*models.User{},
		Credentials: map[string]*models.Credential{},
		Alerts:      map[string]*models.Alert{},
		Positions:   map[string]*models.Position{},
		Markets:     map[string]*models.Market{},
		Entries:     map[string]*models.IndexEntry{},
		Embeddings:  map[string]*models.Embedding{},
		Jobs:        map[string]*models.CronJob{},
		Triggers:    map[string]*models.StopLossTrigger{},
	}
}

func (m *MemStore) UserStore() interfaces.UserStore               { return (*memUserStore)(m) }
func (m *MemStore) SessionStore() interfaces.SessionStore         { return (*memSessionStore)(m) }
func (m *MemStore) CredentialStore() interfaces.CredentialStore   { return (*memCredentialStore)(m) }
func (m *MemStore) AlertStore() interfaces.AlertStore             { return (*memAlertStore)(m) }
func (m *MemStore) PositionStore() interfaces.PositionStore       { return (*memPositionStore)(m) }
func (m *MemStore) SnapshotStore() interfaces.SnapshotStore       { return (*memSnapshotStore)(m) }
func (m *MemStore) MarketCacheStore() interfaces.MarketCacheStore { return (*memMarketCacheStore)(m) }
func (m *MemStore) IndexStore() interfaces.IndexStore             { return (*memIndexStore)(m) }
func (m *MemStore) CronStore() interfaces.CronStore               { return (*memCronStore)(m) }
func (m *MemStore) TriggerStore() interfaces.TriggerStore         { return (*memTriggerStore)(m) }
func (m *MemStore) Close() error                                  { return nil }

func key2(a string, b models.Venue) string { return a + "_" + string(b) }

func key3(a string, b models.Venue, c string) string { return a + "_" + string(b) + "_" + c }

type memUserStore MemStore

func (s *memUserStore) Get(ctx context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.Users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) GetByPlatformID(ctx context.Context, platform models.Channel, platformUserID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.Users {
		if u.Platform == platform && u.PlatformUserID == platformUserID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memUserStore) Save(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.Users[user.ID] = &cp
	return nil
}

func (s *memUserStore) List(ctx context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, u := range s.Users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memSessionStore MemStore

func (s *memSessionStore) Save(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.Sessions = append(s.Sessions, &cp)
	return nil
}

func (s *memSessionStore) LatestForUser(ctx context.Context, userID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Session
	for _, sess := range s.Sessions {
		if sess.UserID != userID {
			continue
		}
		if latest == nil || sess.LastActivity.After(latest.LastActivity) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

type memCredentialStore MemStore

func (s *memCredentialStore) ListEnabledUsers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, c := range s.Credentials {
		if c.Enabled && !seen[c.UserID] {
			seen[c.UserID] = true
			out = append(out, c.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memCredentialStore) ListForUser(ctx context.Context, userID string) ([]*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Credential
	for _, c := range s.Credentials {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Venue < out[j].Venue })
	return out, nil
}

func (s *memCredentialStore) Save(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cred
	s.Credentials[key2(cred.UserID, cred.Venue)] = &cp
	return nil
}

func (s *memCredentialStore) MarkSuccess(ctx context.Context, userID string, venue models.Venue, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.Credentials[key2(userID, venue)]; ok {
		c.LastSuccess = at
		c.LastError = ""
	}
	return nil
}

func (s *memCredentialStore) MarkFailure(ctx context.Context, userID string, venue models.Venue, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.Credentials[key2(userID, venue)]; ok {
		c.LastFailure = at
		c.LastError = reason
	}
	return nil
}

type memAlertStore MemStore

func (s *memAlertStore) Create(ctx context.Context, alert *models.Alert) error {
	if err := alert.Condition.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *alert
	s.Alerts[alert.ID] = &cp
	return nil
}

func (s *memAlertStore) Get(ctx context.Context, id string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.Alerts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAlertStore) ListActive(ctx context.Context) ([]*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Alert
	for _, a := range s.Alerts {
		if a.Enabled && !a.Triggered {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memAlertStore) ListForUser(ctx context.Context, userID string) ([]*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Alert
	for _, a := range s.Alerts {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memAlertStore) MarkTriggered(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.Alerts[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Triggered = true
	return nil
}

func (s *memAlertStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Alerts, id)
	return nil
}

type memPositionStore MemStore

func (s *memPositionStore) Upsert(ctx context.Context, pos *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pos
	cp.ID = key3(pos.UserID, pos.Venue, pos.OutcomeID)
	s.Positions[cp.ID] = &cp
	return nil
}

func (s *memPositionStore) ListForUser(ctx context.Context, userID string) ([]*models.Position, error) {
	return s.list(userID, "")
}

func (s *memPositionStore) ListForUserVenue(ctx context.Context, userID string, venue models.Venue) ([]*models.Position, error) {
	return s.list(userID, venue)
}

func (s *memPositionStore) list(userID string, venue models.Venue) ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Position
	for _, p := range s.Positions {
		if p.UserID != userID {
			continue
		}
		if venue != "" && p.Venue != venue {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memPositionStore) Delete(ctx context.Context, userID string, venue models.Venue, outcomeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Positions, key3(userID, venue, outcomeID))
	return nil
}

type memSnapshotStore MemStore

func (s *memSnapshotStore) Append(ctx context.Context, snap *models.PortfolioSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.Snapshots = append(s.Snapshots, &cp)
	return nil
}

func (s *memSnapshotStore) ListForUser(ctx context.Context, userID string, limit int) ([]*models.PortfolioSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PortfolioSnapshot
	for _, snap := range s.Snapshots {
		if snap.UserID == userID {
			cp := *snap
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memSnapshotStore) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*models.PortfolioSnapshot
	pruned := 0
	for _, snap := range s.Snapshots {
		if snap.Timestamp.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, snap)
	}
	s.Snapshots = kept
	return pruned, nil
}

type memMarketCacheStore MemStore

func (s *memMarketCacheStore) Get(ctx context.Context, venue models.Venue, marketID string) (*models.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Markets[key2(marketID, venue)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memMarketCacheStore) Put(ctx context.Context, market *models.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *market
	s.Markets[key2(market.MarketID, market.Venue)] = &cp
	return nil
}

type memIndexStore MemStore

func (s *memIndexStore) UpsertEntry(ctx context.Context, entry *models.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	if cp.ContentHash == "" {
		cp.ContentHash = cp.ComputeContentHash()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.Entries[key2(entry.MarketID, entry.Venue)] = &cp
	return nil
}

func (s *memIndexStore) GetEntry(ctx context.Context, venue models.Venue, marketID string) (*models.IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.Entries[key2(marketID, venue)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memIndexStore) GetHash(ctx context.Context, venue models.Venue, marketID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.Entries[key2(marketID, venue)]
	if !ok {
		return "", storage.ErrNotFound
	}
	return e.ContentHash, nil
}

func (s *memIndexStore) Query(ctx context.Context, opts interfaces.IndexQueryOptions) ([]*models.IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := strings.ToLower(strings.TrimSpace(opts.Text))
	if len(text) < 3 {
		text = ""
	}
	var out []*models.IndexEntry
	for _, e := range s.Entries {
		if opts.Venue != "" && e.Venue != opts.Venue {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(e.Question), text) &&
			!strings.Contains(strings.ToLower(e.Description), text) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *memIndexStore) PruneStale(ctx context.Context, venue models.Venue, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for k, e := range s.Entries {
		if venue != "" && e.Venue != venue {
			continue
		}
		if e.UpdatedAt.Before(cutoff) {
			delete(s.Entries, k)
			delete(s.Embeddings, k)
			pruned++
		}
	}
	return pruned, nil
}

func (s *memIndexStore) GetEmbedding(ctx context.Context, venue models.Venue, marketID string) (*models.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.Embeddings[key2(marketID, venue)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memIndexStore) PutEmbedding(ctx context.Context, emb *models.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *emb
	s.Embeddings[key2(emb.MarketID, emb.Venue)] = &cp
	return nil
}

type memCronStore MemStore

func (s *memCronStore) List(ctx context.Context) ([]*models.CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CronJob
	for _, j := range s.Jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memCronStore) Get(ctx context.Context, id string) (*models.CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.Jobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memCronStore) Upsert(ctx context.Context, job *models.CronJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.Jobs[job.ID] = &cp
	return nil
}

func (s *memCronStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Jobs, id)
	return nil
}

type memTriggerStore MemStore

func (s *memTriggerStore) Get(ctx context.Context, userID string, venue models.Venue, outcomeID string) (*models.StopLossTrigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Triggers[key3(userID, venue, outcomeID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTriggerStore) Upsert(ctx context.Context, trigger *models.StopLossTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *trigger
	s.Triggers[key3(trigger.UserID, trigger.Venue, trigger.OutcomeID)] = &cp
	return nil
}

func (s *memTriggerStore) ListForUser(ctx context.Context, userID string) ([]*models.StopLossTrigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.StopLossTrigger
	for _, t := range s.Triggers {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out, nil
}

// Compile-time check
var _ interfaces.StorageManager = (*MemStore)(nil)
