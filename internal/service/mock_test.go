package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/warcore/internal/model"
)

type mockGameRepo struct {
	games   map[string]*model.Game
	players map[string][]model.GamePlayer
}

func newMockGameRepo() *mockGameRepo {
	return &mockGameRepo{
		games:   make(map[string]*model.Game),
		players: make(map[string][]model.GamePlayer),
	}
}

func (m *mockGameRepo) Create(_ context.Context, name, creatorID string, rules json.RawMessage) (*model.Game, error) {
	if rules == nil {
		rules = json.RawMessage("{}")
	}
	g := &model.Game{
		ID:        fmt.Sprintf("game-%d", len(m.games)+1),
		Name:      name,
		CreatorID: creatorID,
		Status:    "active",
		Rules:     rules,
		CreatedAt: time.Now(),
	}
	m.games[g.ID] = g
	return g, nil
}

func (m *mockGameRepo) FindByID(_ context.Context, id string) (*model.Game, error) {
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	cp.Players = slices.Clone(m.players[id])
	return &cp, nil
}

func (m *mockGameRepo) ListByUser(_ context.Context, userID string) ([]model.Game, error) {
	var result []model.Game
	for _, g := range m.games {
		member := g.CreatorID == userID
		for _, p := range m.players[g.ID] {
			if p.UserID == userID {
				member = true
			}
		}
		if member {
			result = append(result, *g)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockGameRepo) ListActive(_ context.Context) ([]model.Game, error) {
	var result []model.Game
	for _, g := range m.games {
		if g.Status == "active" {
			cp := *g
			cp.Players = m.players[g.ID]
			result = append(result, cp)
		}
	}
	return result, nil
}

func (m *mockGameRepo) JoinGame(_ context.Context, gameID, userID, nation string) error {
	m.players[gameID] = append(m.players[gameID], model.GamePlayer{
		GameID:   gameID,
		UserID:   userID,
		Nation:   nation,
		JoinedAt: time.Now(),
	})
	return nil
}

func (m *mockGameRepo) JoinGameAsBot(_ context.Context, gameID, userID, nation, difficulty string) error {
	if difficulty == "" {
		difficulty = "easy"
	}
	m.players[gameID] = append(m.players[gameID], model.GamePlayer{
		GameID:        gameID,
		UserID:        userID,
		Nation:        nation,
		IsBot:         true,
		BotDifficulty: difficulty,
		JoinedAt:      time.Now(),
	})
	return nil
}

func (m *mockGameRepo) SetFinished(_ context.Context, gameID string) error {
	if g, ok := m.games[gameID]; ok {
		g.Status = "finished"
		now := time.Now()
		g.FinishedAt = &now
	}
	return nil
}

func (m *mockGameRepo) Delete(_ context.Context, gameID string) error {
	delete(m.games, gameID)
	delete(m.players, gameID)
	return nil
}

// mockUserRepo implements repository.UserRepository for testing.
type mockUserRepo struct {
	users map[string]*model.User
	seq   int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (m *mockUserRepo) FindByProviderID(_ context.Context, provider, providerID string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) Upsert(_ context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			u.DisplayName = displayName
			return u, nil
		}
	}
	m.seq++
	u := &model.User{
		ID:          fmt.Sprintf("user-%d", m.seq),
		Provider:    provider,
		ProviderID:  providerID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserRepo) UpdateDisplayName(_ context.Context, id, displayName string) error {
	if u, ok := m.users[id]; ok {
		u.DisplayName = displayName
	}
	return nil
}

// mockBattleRepo implements repository.BattleRepository for testing.
type mockBattleRepo struct {
	records []model.BattleRecord
	failing bool
}

func (m *mockBattleRepo) SaveRecords(_ context.Context, records []model.BattleRecord) error {
	if m.failing {
		return fmt.Errorf("database unavailable")
	}
	for _, r := range records {
		dup := slices.ContainsFunc(m.records, func(have model.BattleRecord) bool {
			return have.GameID == r.GameID && have.BattleID == r.BattleID
		})
		if !dup {
			m.records = append(m.records, r)
		}
	}
	return nil
}

func (m *mockBattleRepo) ListByGame(_ context.Context, gameID string) ([]model.BattleRecord, error) {
	var result []model.BattleRecord
	for _, r := range m.records {
		if r.GameID == gameID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockBattleRepo) FindByBattleID(_ context.Context, gameID, battleID string) (*model.BattleRecord, error) {
	for _, r := range m.records {
		if r.GameID == gameID && r.BattleID == battleID {
			return &r, nil
		}
	}
	return nil, nil
}

// mockCache implements repository.BattleCache for testing.
type mockCache struct {
	snapshots map[string]json.RawMessage
	decisions map[string]model.DecisionRequest // key: "gameID:battleID"
	answers   map[string]json.RawMessage
	deadlines map[string]time.Time
}

func newMockCache() *mockCache {
	return &mockCache{
		snapshots: make(map[string]json.RawMessage),
		decisions: make(map[string]model.DecisionRequest),
		answers:   make(map[string]json.RawMessage),
		deadlines: make(map[string]time.Time),
	}
}

func (c *mockCache) SetSnapshot(_ context.Context, gameID string, snapshot json.RawMessage) error {
	c.snapshots[gameID] = snapshot
	return nil
}

func (c *mockCache) GetSnapshot(_ context.Context, gameID string) (json.RawMessage, error) {
	return c.snapshots[gameID], nil
}

func (c *mockCache) SetDecisionRequest(_ context.Context, req model.DecisionRequest) error {
	c.decisions[req.GameID+":"+req.BattleID] = req
	return nil
}

func (c *mockCache) GetDecisionRequest(_ context.Context, gameID, battleID string) (*model.DecisionRequest, error) {
	req, ok := c.decisions[gameID+":"+battleID]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (c *mockCache) ListDecisionRequests(_ context.Context, gameID string) ([]model.DecisionRequest, error) {
	var result []model.DecisionRequest
	for _, req := range c.decisions {
		if req.GameID == gameID {
			result = append(result, req)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BattleID < result[j].BattleID })
	return result, nil
}

func (c *mockCache) SetAnswer(_ context.Context, gameID, battleID string, answer json.RawMessage) error {
	c.answers[gameID+":"+battleID] = answer
	return nil
}

func (c *mockCache) TakeAnswer(_ context.Context, gameID, battleID string) (json.RawMessage, error) {
	key := gameID + ":" + battleID
	ans, ok := c.answers[key]
	if !ok {
		return nil, nil
	}
	delete(c.answers, key)
	return ans, nil
}

func (c *mockCache) ClearDecision(_ context.Context, gameID, battleID string) error {
	key := gameID + ":" + battleID
	delete(c.decisions, key)
	delete(c.answers, key)
	delete(c.deadlines, key)
	return nil
}

func (c *mockCache) SetDeadline(_ context.Context, gameID, battleID string, deadline time.Time) error {
	c.deadlines[gameID+":"+battleID] = deadline
	return nil
}

func (c *mockCache) ListSuspendedGames(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var result []string
	for _, req := range c.decisions {
		if !seen[req.GameID] {
			seen[req.GameID] = true
			result = append(result, req.GameID)
		}
	}
	slices.Sort(result)
	return result, nil
}

func (c *mockCache) DeleteGameData(_ context.Context, gameID string) error {
	delete(c.snapshots, gameID)
	for key, req := range c.decisions {
		if req.GameID == gameID {
			delete(c.decisions, key)
			delete(c.answers, key)
			delete(c.deadlines, key)
		}
	}
	return nil
}

// recordingBroadcaster keeps every event it is asked to send.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	GameID string
	Type   string
	Data   any
}

func (b *recordingBroadcaster) BroadcastGameEvent(gameID, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{GameID: gameID, Type: eventType, Data: data})
}

func (b *recordingBroadcaster) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
