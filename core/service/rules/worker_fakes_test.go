package rules

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"
)

// memStore is an in-memory CRM store with the same uniqueness guards as the
// SQL schema.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	clock  time.Time

	contacts   map[int64]*domain.Contact
	opps       map[int64]*domain.Opportunity
	stages     []*domain.Stage
	leads      []*domain.Lead
	activities []*domain.Activity
	followUps  []*domain.FollowUp
	snapshots  []*domain.CommissionSnapshot
	messages   map[int64]*domain.Message
	rules      []*domain.Rule
	mappings   []*domain.CategoryMapping

	// contactRace makes the next contact insert lose to a concurrent writer.
	contactRace bool
	// leadRace makes a concurrent writer insert the conversation's lead right
	// after the first lookup misses it.
	leadRace      bool
	ruleUpdates   int
	listRulesErr  error
	saveStateErrs map[int64]error
}

func newMemStore() *memStore {
	return &memStore{
		clock:         time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		contacts:      make(map[int64]*domain.Contact),
		opps:          make(map[int64]*domain.Opportunity),
		messages:      make(map[int64]*domain.Message),
		saveStateErrs: make(map[int64]error),
	}
}

func (s *memStore) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

func (s *memStore) advance(d time.Duration) {
	s.mu.Lock()
	s.clock = s.clock.Add(d)
	s.mu.Unlock()
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) crm() out.CRMStore {
	return out.CRMStore{
		Contacts:      fakeContacts{s},
		Opportunities: fakeOpportunities{s},
		Stages:        fakeStages{s},
		Leads:         fakeLeads{s},
		Activities:    fakeActivities{s},
		FollowUps:     fakeFollowUps{s},
		Commissions:   fakeCommissions{s},
		Messages:      fakeMessages{s},
	}
}

func (s *memStore) addMessage(m *domain.Message) *domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.id()
	}
	s.messages[m.ID] = m.Clone()
	return m
}

func (s *memStore) addRule(r *domain.Rule) *domain.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	s.rules = append(s.rules, r)
	return r
}

func (s *memStore) contactCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contacts)
}

func (s *memStore) storedMessage(id int64) *domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id].Clone()
}

// --- contacts ---

type fakeContacts struct{ s *memStore }

func (f fakeContacts) GetByEmail(_ context.Context, email string) (*domain.Contact, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, c := range f.s.contacts {
		if domain.NormalizeEmail(c.Email) == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeContacts) GetByID(_ context.Context, id int64) (*domain.Contact, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if c, ok := f.s.contacts[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f fakeContacts) Create(_ context.Context, c *domain.Contact) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.contactRace {
		f.s.contactRace = false
		winner := &domain.Contact{ID: f.s.id(), Email: c.Email, CreatedAt: f.s.clock}
		f.s.contacts[winner.ID] = winner
		return out.ErrDuplicate
	}
	for _, existing := range f.s.contacts {
		if domain.NormalizeEmail(existing.Email) == domain.NormalizeEmail(c.Email) {
			return out.ErrDuplicate
		}
	}
	c.ID = f.s.id()
	c.CreatedAt = f.s.clock
	cp := *c
	f.s.contacts[c.ID] = &cp
	return nil
}

// --- opportunities / stages ---

type fakeOpportunities struct{ s *memStore }

func (f fakeOpportunities) GetByID(_ context.Context, id int64) (*domain.Opportunity, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if o, ok := f.s.opps[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (f fakeOpportunities) Create(_ context.Context, o *domain.Opportunity) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o.ID = f.s.id()
	o.CreatedAt = f.s.clock
	cp := *o
	f.s.opps[o.ID] = &cp
	return nil
}

func (f fakeOpportunities) UpdateStage(_ context.Context, id, stageID int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o, ok := f.s.opps[id]
	if !ok {
		return out.ErrNotFound
	}
	o.StageID = &stageID
	return nil
}

func (f fakeOpportunities) MarkWon(_ context.Context, id int64, closedAt time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o, ok := f.s.opps[id]
	if !ok {
		return out.ErrNotFound
	}
	o.Status = domain.OpportunityStatusWon
	o.ClosedAt = &closedAt
	return nil
}

type fakeStages struct{ s *memStore }

func (f fakeStages) GetByName(_ context.Context, name string) (*domain.Stage, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, st := range f.s.stages {
		if strings.EqualFold(st.Name, name) {
			cp := *st
			return &cp, nil
		}
	}
	return nil, nil
}

// --- leads ---

type fakeLeads struct{ s *memStore }

func (f fakeLeads) FindByConversation(_ context.Context, contactID int64, conversationID string) (*domain.Lead, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.leadRace {
		f.s.leadRace = false
		f.s.leads = append(f.s.leads, &domain.Lead{
			ID:             f.s.id(),
			ContactID:      contactID,
			ConversationID: conversationID,
			Source:         "concurrent pass",
			Status:         domain.LeadStatusNew,
			CreatedAt:      f.s.clock,
		})
		return nil, nil
	}
	for _, l := range f.s.leads {
		if l.ContactID == contactID && l.ConversationID == conversationID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeLeads) FindRecentBySource(_ context.Context, contactID int64, source string, since time.Time) (*domain.Lead, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := len(f.s.leads) - 1; i >= 0; i-- {
		l := f.s.leads[i]
		if l.ContactID == contactID && l.Source == source && !l.CreatedAt.Before(since) {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeLeads) LatestForContact(_ context.Context, contactID int64) (*domain.Lead, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := len(f.s.leads) - 1; i >= 0; i-- {
		if f.s.leads[i].ContactID == contactID {
			cp := *f.s.leads[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeLeads) Create(_ context.Context, l *domain.Lead) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if l.ConversationID != "" {
		for _, existing := range f.s.leads {
			if existing.ContactID == l.ContactID && existing.ConversationID == l.ConversationID {
				return out.ErrDuplicate
			}
		}
	}
	l.ID = f.s.id()
	l.CreatedAt = f.s.clock
	cp := *l
	f.s.leads = append(f.s.leads, &cp)
	return nil
}

// --- activities / follow-ups / commissions ---

type fakeActivities struct{ s *memStore }

func (f fakeActivities) Create(_ context.Context, a *domain.Activity) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a.ID = f.s.id()
	cp := *a
	f.s.activities = append(f.s.activities, &cp)
	return nil
}

type fakeFollowUps struct{ s *memStore }

func (f fakeFollowUps) Create(_ context.Context, fu *domain.FollowUp) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	fu.ID = f.s.id()
	cp := *fu
	f.s.followUps = append(f.s.followUps, &cp)
	return nil
}

type fakeCommissions struct{ s *memStore }

func (f fakeCommissions) GetByOpportunityAndEmail(_ context.Context, oppID, emailID int64) (*domain.CommissionSnapshot, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, snap := range f.s.snapshots {
		if snap.OpportunityID == oppID && snap.EmailID != nil && *snap.EmailID == emailID {
			cp := *snap
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeCommissions) Create(_ context.Context, snap *domain.CommissionSnapshot) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	snap.ID = f.s.id()
	cp := *snap
	f.s.snapshots = append(f.s.snapshots, &cp)
	return nil
}

// --- messages ---

type fakeMessages struct{ s *memStore }

func (f fakeMessages) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if m, ok := f.s.messages[id]; ok {
		return m.Clone(), nil
	}
	return nil, nil
}

func (f fakeMessages) list(limit int, keep func(*domain.Message) bool) []*domain.Message {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var msgs []*domain.Message
	for _, m := range f.s.messages {
		if keep(m) {
			msgs = append(msgs, m.Clone())
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

func (f fakeMessages) ListUnprocessed(_ context.Context, limit int) ([]*domain.Message, error) {
	return f.list(limit, func(m *domain.Message) bool { return !m.ProcessedByRules }), nil
}

func (f fakeMessages) ListProviderSourced(_ context.Context, limit int) ([]*domain.Message, error) {
	return f.list(limit, func(m *domain.Message) bool { return m.ExternalID != "" }), nil
}

func (f fakeMessages) SetContact(_ context.Context, messageID, contactID int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	m, ok := f.s.messages[messageID]
	if !ok {
		return out.ErrNotFound
	}
	m.ContactID = &contactID
	return nil
}

func (f fakeMessages) SetOpportunity(_ context.Context, messageID, oppID int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	m, ok := f.s.messages[messageID]
	if !ok {
		return out.ErrNotFound
	}
	m.OpportunityID = &oppID
	return nil
}

func (f fakeMessages) SetCategories(_ context.Context, messageID int64, cats domain.Categories) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	m, ok := f.s.messages[messageID]
	if !ok {
		return out.ErrNotFound
	}
	m.Categories = cats
	return nil
}

func (f fakeMessages) SaveProcessingState(_ context.Context, msg *domain.Message) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.saveStateErrs[msg.ID]; err != nil {
		return err
	}
	m, ok := f.s.messages[msg.ID]
	if !ok {
		return out.ErrNotFound
	}
	m.Categories = msg.Categories
	m.IsFlagged = msg.IsFlagged
	m.FlagDueDate = msg.FlagDueDate
	m.ProcessedByRules = true
	return nil
}

// --- rules / mappings ---

type fakeRules struct{ s *memStore }

func (f fakeRules) ListEnabled(_ context.Context) ([]*domain.Rule, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.listRulesErr != nil {
		return nil, f.s.listRulesErr
	}
	var rules []*domain.Rule
	for _, r := range f.s.rules {
		if r.Enabled {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

func (f fakeRules) List(_ context.Context) ([]*domain.Rule, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return append([]*domain.Rule(nil), f.s.rules...), nil
}

func (f fakeRules) GetByID(_ context.Context, id int64) (*domain.Rule, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, r := range f.s.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f fakeRules) GetByName(_ context.Context, name string) (*domain.Rule, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, r := range f.s.rules {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, nil
}

func (f fakeRules) Create(_ context.Context, r *domain.Rule) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.rules {
		if existing.Name == r.Name {
			return out.ErrDuplicate
		}
	}
	r.ID = f.s.id()
	f.s.rules = append(f.s.rules, r)
	return nil
}

func (f fakeRules) Update(_ context.Context, r *domain.Rule) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.ruleUpdates++
	for i, existing := range f.s.rules {
		if existing.ID == r.ID {
			f.s.rules[i] = r
			return nil
		}
	}
	return out.ErrNotFound
}

func (f fakeRules) SetEnabled(_ context.Context, id int64, enabled bool) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.rules {
		if existing.ID == id {
			existing.Enabled = enabled
			return nil
		}
	}
	return out.ErrNotFound
}

func (f fakeRules) Delete(_ context.Context, id int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i, existing := range f.s.rules {
		if existing.ID == id {
			f.s.rules = append(f.s.rules[:i], f.s.rules[i+1:]...)
			return nil
		}
	}
	return out.ErrNotFound
}

func (f fakeRules) IncrementHitCount(_ context.Context, id int64, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, r := range f.s.rules {
		if r.ID == id {
			r.HitCount++
			t := at
			r.LastHitAt = &t
		}
	}
	return nil
}

type fakeMappings struct{ s *memStore }

func (f fakeMappings) List(_ context.Context) ([]*domain.CategoryMapping, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return append([]*domain.CategoryMapping(nil), f.s.mappings...), nil
}

func (f fakeMappings) GetByName(_ context.Context, name string) (*domain.CategoryMapping, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, m := range f.s.mappings {
		if m.CategoryName == name {
			return m, nil
		}
	}
	return nil, nil
}

func (f fakeMappings) Upsert(_ context.Context, m *domain.CategoryMapping) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i, existing := range f.s.mappings {
		if existing.CategoryName == m.CategoryName {
			m.ID = existing.ID
			f.s.mappings[i] = m
			return nil
		}
	}
	m.ID = f.s.id()
	f.s.mappings = append(f.s.mappings, m)
	return nil
}

func (f fakeMappings) Delete(_ context.Context, id int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i, existing := range f.s.mappings {
		if existing.ID == id {
			f.s.mappings = append(f.s.mappings[:i], f.s.mappings[i+1:]...)
			return nil
		}
	}
	return out.ErrNotFound
}

// --- provider / cache ---

type fakeProvider struct {
	mu        sync.Mutex
	fetch     []string
	fetchErr  error
	assignErr error
	assigned  []string
}

func (p *fakeProvider) FetchCategories(_ context.Context, _, _, _ string) ([]string, error) {
	return p.fetch, p.fetchErr
}

func (p *fakeProvider) AssignCategory(_ context.Context, _, _, _, category string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.assignErr != nil {
		return p.assignErr
	}
	p.assigned = append(p.assigned, category)
	return nil
}

type fakeCache struct {
	rules       []*domain.Rule
	mappings    []*domain.CategoryMapping
	hasRules    bool
	hasMappings bool
	invalidated int
}

func (c *fakeCache) GetRules(context.Context) ([]*domain.Rule, bool, error) {
	return c.rules, c.hasRules, nil
}

func (c *fakeCache) SetRules(_ context.Context, rules []*domain.Rule) error {
	c.rules, c.hasRules = rules, true
	return nil
}

func (c *fakeCache) GetMappings(context.Context) ([]*domain.CategoryMapping, bool, error) {
	return c.mappings, c.hasMappings, nil
}

func (c *fakeCache) SetMappings(_ context.Context, m []*domain.CategoryMapping) error {
	c.mappings, c.hasMappings = m, true
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.rules, c.mappings = nil, nil
	c.hasRules, c.hasMappings = false, false
	c.invalidated++
	return nil
}

// --- harness ---

type harness struct {
	store     *memStore
	provider  *fakeProvider
	source    *RuleSource
	executor  *ActionExecutor
	processor *Processor
}

func newHarness() *harness {
	store := newMemStore()
	provider := &fakeProvider{}
	source := NewRuleSource(fakeRules{store}, fakeMappings{store}, nil)
	executor := NewActionExecutor(store.crm(), ActionExecutorConfig{
		Tagger: provider,
		Now:    store.now,
	})
	processor := NewProcessor(ProcessorDeps{
		Source:   source,
		Executor: executor,
		Messages: fakeMessages{store},
		Provider: provider,
		Now:      store.now,
	})
	return &harness{
		store:     store,
		provider:  provider,
		source:    source,
		executor:  executor,
		processor: processor,
	}
}

func rule(name string, priority int, conds []domain.Condition, actions ...domain.Action) *domain.Rule {
	return &domain.Rule{
		Name:       name,
		Priority:   priority,
		Enabled:    true,
		Conditions: conds,
		Actions:    actions,
	}
}

func cond(t domain.ConditionType, op domain.Operator, value string) domain.Condition {
	return domain.Condition{Type: t, Operator: op, Value: value}
}

func act(t domain.ActionType, params map[string]any) domain.Action {
	return domain.Action{Type: t, Params: params}
}

func newActionContext(msg *domain.Message) *actionContext {
	return &actionContext{msg: msg, obs: NewObservedState()}
}
