package campaign

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-memory implementation of Store with the same
// cascade rules as the Postgres schema.
// Thread-safe via RWMutex.
type InMemoryStore struct {
	mu sync.RWMutex

	campaigns  map[string]*Campaign
	nodes      map[string]*FlowNode
	edges      map[string]*FlowEdge
	encounters map[string]*Encounter
	enemies    map[string]*Enemy
	loot       map[string]*Loot
	drawings   map[string]*Drawing // flow node ID -> drawing

	seq     int64
	created map[string]int64 // record ID -> insertion sequence
	touched map[string]int64 // campaign ID -> last write sequence

	now func() time.Time
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		campaigns:  make(map[string]*Campaign),
		nodes:      make(map[string]*FlowNode),
		edges:      make(map[string]*FlowEdge),
		encounters: make(map[string]*Encounter),
		enemies:    make(map[string]*Enemy),
		loot:       make(map[string]*Loot),
		drawings:   make(map[string]*Drawing),
		created:    make(map[string]int64),
		touched:    make(map[string]int64),
		now:        time.Now,
	}
}

func (s *InMemoryStore) nextID() string {
	s.seq++
	id := uuid.New().String()
	s.created[id] = s.seq
	return id
}

func (s *InMemoryStore) touch(campaignID string) {
	s.seq++
	s.touched[campaignID] = s.seq
}

func (s *InMemoryStore) byInsertion(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return s.created[ids[i]] < s.created[ids[j]] })
}

// nodeView copies a node and attaches its encounter and drawing.
func (s *InMemoryStore) nodeView(n *FlowNode) FlowNode {
	view := *n
	view.Encounter = nil
	view.Drawing = nil
	if n.EncounterID != nil {
		if enc, ok := s.encounters[*n.EncounterID]; ok {
			e := encounterPlain(enc)
			view.Encounter = &e
		}
	}
	if d, ok := s.drawings[n.ID]; ok {
		dc := *d
		view.Drawing = &dc
	}
	return view
}

func encounterPlain(e *Encounter) Encounter {
	c := *e
	c.Enemies = nil
	c.Loot = nil
	c.FlowNode = nil
	return c
}

func (s *InMemoryStore) nodesOf(campaignID string) []FlowNode {
	var ids []string
	for id, n := range s.nodes {
		if n.CampaignID == campaignID {
			ids = append(ids, id)
		}
	}
	s.byInsertion(ids)
	out := make([]FlowNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.nodeView(s.nodes[id]))
	}
	return out
}

func (s *InMemoryStore) edgesOf(campaignID string) []FlowEdge {
	var ids []string
	for id, e := range s.edges {
		if e.CampaignID == campaignID {
			ids = append(ids, id)
		}
	}
	s.byInsertion(ids)
	out := make([]FlowEdge, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.edges[id])
	}
	return out
}

// ListCampaigns returns every campaign, most recently updated first.
func (s *InMemoryStore) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.touched[out[i].ID] > s.touched[out[j].ID]
	})
	return out, nil
}

// GetCampaign returns a campaign with its flowchart and encounters.
func (s *InMemoryStore) GetCampaign(ctx context.Context, id string) (*Detail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}

	var encIDs []string
	for encID, e := range s.encounters {
		if e.CampaignID == id {
			encIDs = append(encIDs, encID)
		}
	}
	s.byInsertion(encIDs)
	encounters := make([]Encounter, 0, len(encIDs))
	for _, encID := range encIDs {
		encounters = append(encounters, encounterPlain(s.encounters[encID]))
	}

	return &Detail{
		Campaign:   *c,
		FlowNodes:  s.nodesOf(id),
		FlowEdges:  s.edgesOf(id),
		Encounters: encounters,
	}, nil
}

// CreateCampaign persists a new campaign.
func (s *InMemoryStore) CreateCampaign(ctx context.Context, c *Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c.ID = s.nextID()
	c.CreatedAt = now
	c.UpdatedAt = now

	stored := *c
	s.campaigns[c.ID] = &stored
	s.touch(c.ID)
	return nil
}

// UpdateCampaign merges p into the stored campaign.
func (s *InMemoryStore) UpdateCampaign(ctx context.Context, id string, p CampaignPatch) (*Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	p.Apply(c)
	c.UpdatedAt = s.now()
	s.touch(id)

	out := *c
	return &out, nil
}

// DeleteCampaign removes the campaign and everything it owns.
func (s *InMemoryStore) DeleteCampaign(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[id]; !ok {
		return ErrCampaignNotFound
	}
	for nodeID, n := range s.nodes {
		if n.CampaignID == id {
			s.deleteNodeLocked(nodeID)
		}
	}
	for edgeID, e := range s.edges {
		if e.CampaignID == id {
			s.forget(edgeID)
			delete(s.edges, edgeID)
		}
	}
	for encID, e := range s.encounters {
		if e.CampaignID == id {
			s.deleteEncounterLocked(encID)
		}
	}
	delete(s.campaigns, id)
	delete(s.touched, id)
	s.forget(id)
	return nil
}

func (s *InMemoryStore) forget(id string) {
	delete(s.created, id)
}

// GetFlow returns the nodes and edges of a campaign.
func (s *InMemoryStore) GetFlow(ctx context.Context, campaignID string) (*Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Flow{
		Nodes: s.nodesOf(campaignID),
		Edges: s.edgesOf(campaignID),
	}, nil
}

// GetNode returns one node with its encounter and drawing.
func (s *InMemoryStore) GetNode(ctx context.Context, id string) (*FlowNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	view := s.nodeView(n)
	return &view, nil
}

// CreateNode persists a new node.
func (s *InMemoryStore) CreateNode(ctx context.Context, n *FlowNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[n.CampaignID]; !ok {
		return ErrCampaignNotFound
	}
	if n.EncounterID != nil {
		if _, ok := s.encounters[*n.EncounterID]; !ok {
			return ErrEncounterNotFound
		}
	}

	now := s.now()
	n.ID = s.nextID()
	n.CreatedAt = now
	n.UpdatedAt = now

	stored := *n
	stored.Encounter = nil
	stored.Drawing = nil
	s.nodes[n.ID] = &stored
	*n = s.nodeView(&stored)
	return nil
}

// UpdateNode merges p into the stored node.
func (s *InMemoryStore) UpdateNode(ctx context.Context, id string, p NodePatch) (*FlowNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	if p.EncounterID.Set && p.EncounterID.Value != nil {
		if _, ok := s.encounters[*p.EncounterID.Value]; !ok {
			return nil, ErrEncounterNotFound
		}
	}
	p.Apply(n)
	n.UpdatedAt = s.now()

	view := s.nodeView(n)
	return &view, nil
}

// DeleteNode removes the node, its drawing and its edges.
func (s *InMemoryStore) DeleteNode(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return "", ErrNodeNotFound
	}
	campaignID := n.CampaignID
	s.deleteNodeLocked(id)
	return campaignID, nil
}

func (s *InMemoryStore) deleteNodeLocked(id string) {
	if d, ok := s.drawings[id]; ok {
		s.forget(d.ID)
		delete(s.drawings, id)
	}
	for edgeID, e := range s.edges {
		if e.SourceNodeID == id || e.TargetNodeID == id {
			s.forget(edgeID)
			delete(s.edges, edgeID)
		}
	}
	s.forget(id)
	delete(s.nodes, id)
}

// CreateEdge persists a new edge.
func (s *InMemoryStore) CreateEdge(ctx context.Context, e *FlowEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[e.CampaignID]; !ok {
		return ErrCampaignNotFound
	}
	if _, ok := s.nodes[e.SourceNodeID]; !ok {
		return ErrNodeNotFound
	}
	if _, ok := s.nodes[e.TargetNodeID]; !ok {
		return ErrNodeNotFound
	}

	e.ID = s.nextID()
	e.CreatedAt = s.now()

	stored := *e
	s.edges[e.ID] = &stored
	return nil
}

// UpdateEdge merges p into the stored edge.
func (s *InMemoryStore) UpdateEdge(ctx context.Context, id string, p EdgePatch) (*FlowEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.edges[id]
	if !ok {
		return nil, ErrEdgeNotFound
	}
	p.Apply(e)

	out := *e
	return &out, nil
}

// DeleteEdge removes one edge.
func (s *InMemoryStore) DeleteEdge(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.edges[id]
	if !ok {
		return "", ErrEdgeNotFound
	}
	s.forget(id)
	delete(s.edges, id)
	return e.CampaignID, nil
}

// BulkUpdatePositions validates the whole batch before moving any node.
func (s *InMemoryStore) BulkUpdatePositions(ctx context.Context, campaignID string, positions []NodePosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range positions {
		n, ok := s.nodes[p.ID]
		if !ok || n.CampaignID != campaignID {
			return ErrNodeNotFound
		}
	}

	now := s.now()
	for _, p := range positions {
		n := s.nodes[p.ID]
		n.PositionX = p.PositionX
		n.PositionY = p.PositionY
		n.UpdatedAt = now
	}
	return nil
}

// encounterView copies an encounter with its enemies, loot and linking node.
func (s *InMemoryStore) encounterView(e *Encounter) Encounter {
	view := encounterPlain(e)

	var enemyIDs, lootIDs []string
	for id, en := range s.enemies {
		if en.EncounterID == e.ID {
			enemyIDs = append(enemyIDs, id)
		}
	}
	for id, l := range s.loot {
		if l.EncounterID == e.ID {
			lootIDs = append(lootIDs, id)
		}
	}
	s.byInsertion(enemyIDs)
	s.byInsertion(lootIDs)

	view.Enemies = make([]Enemy, 0, len(enemyIDs))
	for _, id := range enemyIDs {
		view.Enemies = append(view.Enemies, *s.enemies[id])
	}
	view.Loot = make([]Loot, 0, len(lootIDs))
	for _, id := range lootIDs {
		view.Loot = append(view.Loot, *s.loot[id])
	}

	var linked []string
	for id, n := range s.nodes {
		if n.EncounterID != nil && *n.EncounterID == e.ID {
			linked = append(linked, id)
		}
	}
	if len(linked) > 0 {
		s.byInsertion(linked)
		n := *s.nodes[linked[0]]
		view.FlowNode = &n
	}
	return view
}

// GetEncounter returns one encounter with enemies, loot and linking node.
func (s *InMemoryStore) GetEncounter(ctx context.Context, id string) (*Encounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.encounters[id]
	if !ok {
		return nil, ErrEncounterNotFound
	}
	view := s.encounterView(e)
	return &view, nil
}

// CreateEncounter persists a new encounter.
func (s *InMemoryStore) CreateEncounter(ctx context.Context, e *Encounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[e.CampaignID]; !ok {
		return ErrCampaignNotFound
	}

	now := s.now()
	e.ID = s.nextID()
	e.CreatedAt = now
	e.UpdatedAt = now

	stored := encounterPlain(e)
	s.encounters[e.ID] = &stored
	*e = s.encounterView(&stored)
	return nil
}

// UpdateEncounter merges p into the stored encounter.
func (s *InMemoryStore) UpdateEncounter(ctx context.Context, id string, p EncounterPatch) (*Encounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.encounters[id]
	if !ok {
		return nil, ErrEncounterNotFound
	}
	p.Apply(e)
	e.UpdatedAt = s.now()

	view := s.encounterView(e)
	return &view, nil
}

// DeleteEncounter removes the encounter, its enemies and loot, and unlinks nodes.
func (s *InMemoryStore) DeleteEncounter(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.encounters[id]
	if !ok {
		return "", ErrEncounterNotFound
	}
	campaignID := e.CampaignID
	s.deleteEncounterLocked(id)
	return campaignID, nil
}

func (s *InMemoryStore) deleteEncounterLocked(id string) {
	for enemyID, en := range s.enemies {
		if en.EncounterID == id {
			s.forget(enemyID)
			delete(s.enemies, enemyID)
		}
	}
	for lootID, l := range s.loot {
		if l.EncounterID == id {
			s.forget(lootID)
			delete(s.loot, lootID)
		}
	}
	for _, n := range s.nodes {
		if n.EncounterID != nil && *n.EncounterID == id {
			n.EncounterID = nil
		}
	}
	s.forget(id)
	delete(s.encounters, id)
}

// AddEnemy persists a new enemy on an existing encounter.
func (s *InMemoryStore) AddEnemy(ctx context.Context, e *Enemy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc, ok := s.encounters[e.EncounterID]
	if !ok {
		return ErrEncounterNotFound
	}
	e.ID = s.nextID()
	e.CampaignID = enc.CampaignID
	e.CreatedAt = s.now()

	stored := *e
	s.enemies[e.ID] = &stored
	return nil
}

// UpdateEnemy merges p into the stored enemy.
func (s *InMemoryStore) UpdateEnemy(ctx context.Context, id string, p EnemyPatch) (*Enemy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enemies[id]
	if !ok {
		return nil, ErrEnemyNotFound
	}
	p.Apply(e)

	out := *e
	return &out, nil
}

// DeleteEnemy removes one enemy.
func (s *InMemoryStore) DeleteEnemy(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enemies[id]
	if !ok {
		return "", ErrEnemyNotFound
	}
	s.forget(id)
	delete(s.enemies, id)
	return e.CampaignID, nil
}

// AddLoot persists a new loot item, applying quantity and rarity defaults.
func (s *InMemoryStore) AddLoot(ctx context.Context, l *Loot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc, ok := s.encounters[l.EncounterID]
	if !ok {
		return ErrEncounterNotFound
	}
	l.ApplyDefaults()
	l.ID = s.nextID()
	l.CampaignID = enc.CampaignID
	l.CreatedAt = s.now()

	stored := *l
	s.loot[l.ID] = &stored
	return nil
}

// UpdateLoot merges p into the stored loot item.
func (s *InMemoryStore) UpdateLoot(ctx context.Context, id string, p LootPatch) (*Loot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loot[id]
	if !ok {
		return nil, ErrLootNotFound
	}
	p.Apply(l)

	out := *l
	return &out, nil
}

// DeleteLoot removes one loot item.
func (s *InMemoryStore) DeleteLoot(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loot[id]
	if !ok {
		return "", ErrLootNotFound
	}
	s.forget(id)
	delete(s.loot, id)
	return l.CampaignID, nil
}

// GetDrawing returns the drawing of a node.
func (s *InMemoryStore) GetDrawing(ctx context.Context, nodeID string) (*Drawing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drawings[nodeID]
	if !ok {
		return nil, ErrDrawingNotFound
	}
	out := *d
	return &out, nil
}

// SaveDrawing creates or overwrites the drawing of d.FlowNodeID. A nil
// ThumbnailURL keeps the stored one.
func (s *InMemoryStore) SaveDrawing(ctx context.Context, d *Drawing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[d.FlowNodeID]
	if !ok {
		return ErrNodeNotFound
	}

	now := s.now()
	if existing, ok := s.drawings[d.FlowNodeID]; ok {
		existing.CanvasData = d.CanvasData
		if d.ThumbnailURL != nil {
			thumb := *d.ThumbnailURL
			existing.ThumbnailURL = &thumb
		}
		existing.UpdatedAt = now
		*d = *existing
		return nil
	}

	d.ID = s.nextID()
	d.CampaignID = n.CampaignID
	d.CreatedAt = now
	d.UpdatedAt = now

	stored := *d
	s.drawings[d.FlowNodeID] = &stored
	return nil
}

// DeleteDrawing removes the drawing of a node.
func (s *InMemoryStore) DeleteDrawing(ctx context.Context, nodeID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drawings[nodeID]
	if !ok {
		return "", ErrDrawingNotFound
	}
	s.forget(d.ID)
	delete(s.drawings, nodeID)
	return d.CampaignID, nil
}
