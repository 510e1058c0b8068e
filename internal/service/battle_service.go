package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warcore/internal/logger"
	"github.com/freeeve/warcore/internal/model"
	"github.com/freeeve/warcore/internal/repository"
	"github.com/freeeve/warcore/pkg/combat"
)

const (
	defaultEstimateRuns = 200
	maxEstimateRuns     = 5000
)

// AttackRequest is a move order that starts or joins a battle. Units and
// Bombard are unit IDs in From; Targets maps a bomber to the unit it aims at.
type AttackRequest struct {
	Attacker string            `json:"attacker"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Units    []string          `json:"units"`
	Bombard  []string          `json:"bombard,omitempty"`
	Bombing  bool              `json:"bombing,omitempty"`
	Targets  map[string]string `json:"targets,omitempty"`
}

// EstimateRequest asks for the odds of attacks that have not been ordered.
type EstimateRequest struct {
	Attacks []AttackRequest `json:"attacks"`
	Runs    int             `json:"runs"`
	Seed    int64           `json:"seed"`
}

// BattleView is how clients see a pending battle.
type BattleView struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	Territory string                 `json:"territory"`
	Attacker  string                 `json:"attacker"`
	Defender  string                 `json:"defender"`
	Round     int                    `json:"round"`
	MaxRounds int                    `json:"max_rounds"`
	Attacking []string               `json:"attacking"`
	Defending []string               `json:"defending"`
	Started   bool                   `json:"started"`
	Ready     bool                   `json:"ready"`
	BlockedBy []string               `json:"blocked_by,omitempty"`
	NextStep  string                 `json:"next_step,omitempty"`
	Decision  *model.DecisionRequest `json:"decision,omitempty"`
}

// FightResult reports what a call into the engine changed: battles that
// finished, the decision it stopped at and what is left to fight.
type FightResult struct {
	Records  []model.BattleRecord   `json:"records"`
	Decision *model.DecisionRequest `json:"decision,omitempty"`
	Pending  []BattleView           `json:"pending"`
}

// BattleService runs the combat engine for hosted games. Every call loads
// the game's snapshot, works on it and stores it again, so a battle waiting
// on a player survives restarts.
type BattleService struct {
	gameRepo    repository.GameRepository
	battleRepo  repository.BattleRepository
	cache       repository.BattleCache
	broadcaster Broadcaster
	timeout     time.Duration

	newRandom func() combat.RandomSource
	now       func() time.Time

	// gameLocks serializes engine calls per game. Player answers, the
	// deadline listener and the poller can all resume the same game.
	gameLocks sync.Map
}

// NewBattleService creates a BattleService. timeout is how long a player
// has to answer a decision.
func NewBattleService(
	gameRepo repository.GameRepository,
	battleRepo repository.BattleRepository,
	cache repository.BattleCache,
	broadcaster Broadcaster,
	timeout time.Duration,
) *BattleService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &BattleService{
		gameRepo:    gameRepo,
		battleRepo:  battleRepo,
		cache:       cache,
		broadcaster: broadcaster,
		timeout:     timeout,
		newRandom: func() combat.RandomSource {
			return combat.NewSeededRandom(time.Now().UnixNano())
		},
		now: time.Now,
	}
}

// SetRandom replaces the dice used by later engine calls.
func (s *BattleService) SetRandom(fn func() combat.RandomSource) {
	s.newRandom = fn
}

func (s *BattleService) lock(gameID string) func() {
	v, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// session is one loaded game: the board, its battles and the bridge the
// engine runs on.
type session struct {
	game    *model.Game
	state   *combat.State
	tracker *combat.Tracker
	rules   *combat.Rules
	bridge  *combat.Bridge
	decider *RemoteDecider
	history *combat.MemoryHistory
	before  map[combat.UnitID]bool
}

func (s *BattleService) open(ctx context.Context, gameID string) (*session, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != "active" {
		return nil, ErrGameNotActive
	}
	data, err := s.cache.GetSnapshot(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNoSnapshot
	}
	state, tr, rules, err := combat.UnmarshalGame(data)
	if err != nil {
		return nil, err
	}

	ss := &session{
		game:    game,
		state:   state,
		tracker: tr,
		rules:   rules,
		history: &combat.MemoryHistory{},
		decider: NewRemoteDecider(game, s.cache, state, rules),
		before:  make(map[combat.UnitID]bool, len(state.Units)),
	}
	for id := range state.Units {
		ss.before[id] = true
	}
	ss.bridge = combat.NewBridge(state, rules, s.newRandom())
	ss.bridge.History = ss.history
	ss.bridge.Decisions = ss.decider
	ss.bridge.Log = logger.ForRequest(ctx).With().Str("gameId", gameID).Logger()
	return ss, nil
}

func (s *BattleService) save(ctx context.Context, ss *session) error {
	snap, err := combat.MarshalGame(ss.state, ss.tracker, ss.rules)
	if err != nil {
		return err
	}
	if err := s.cache.SetSnapshot(ctx, ss.game.ID, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// commit stores what an engine run did. A suspended run is not an error:
// its question is published and the result carries it. A run that broke an
// invariant is discarded without saving.
func (s *BattleService) commit(ctx context.Context, ss *session, runErr error) (*FightResult, error) {
	gameID := ss.game.ID
	var (
		ie *combat.InvariantError
		pe *combat.ProtocolError
	)
	switch {
	case runErr == nil, errors.Is(runErr, combat.ErrAwaitingDecision):
	case errors.As(runErr, &ie):
		log.Error().Err(runErr).Str("gameId", gameID).Msg("Combat invariant violated, state not saved")
		return nil, runErr
	case errors.As(runErr, &pe):
		log.Error().Err(runErr).Str("gameId", gameID).Str("battleId", pe.BattleID).
			Msg("Battle abandoned after repeated invalid decisions")
		if err := ss.tracker.Cancel(combat.BattleID(pe.BattleID)); err != nil {
			log.Warn().Err(err).Str("battleId", pe.BattleID).Msg("Failed to cancel abandoned battle")
		}
		if err := s.cache.ClearDecision(ctx, gameID, pe.BattleID); err != nil {
			log.Warn().Err(err).Str("battleId", pe.BattleID).Msg("Failed to clear decision of abandoned battle")
		}
	default:
		return nil, runErr
	}

	res := &FightResult{}
	if records := ss.tracker.TakeRecords(); len(records) > 0 {
		rows := ToBattleRecords(gameID, records)
		if err := s.battleRepo.SaveRecords(ctx, rows); err != nil {
			// keep them in the snapshot so the next call stores them
			ss.tracker.Records = records
			log.Error().Err(err).Str("gameId", gameID).Int("count", len(rows)).Msg("Failed to store battle records")
		} else {
			res.Records = rows
		}
	}
	if err := s.save(ctx, ss); err != nil {
		return nil, err
	}

	if errors.Is(runErr, combat.ErrAwaitingDecision) {
		if ss.decider.Pending == nil {
			log.Warn().Str("gameId", gameID).Msg("Battle suspended without a recorded question")
		} else {
			req, err := s.publishDecision(ctx, *ss.decider.Pending)
			if err != nil {
				return nil, err
			}
			res.Decision = req
		}
	}

	s.broadcastRun(ss, res)
	pending, err := s.views(ctx, ss)
	if err != nil {
		return nil, err
	}
	res.Pending = pending
	if pe != nil {
		return res, runErr
	}
	return res, nil
}

// publishDecision stores a question and starts its deadline. Asking the
// same question again keeps the running deadline.
func (s *BattleService) publishDecision(ctx context.Context, req model.DecisionRequest) (*model.DecisionRequest, error) {
	existing, err := s.cache.GetDecisionRequest(ctx, req.GameID, req.BattleID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Kind == req.Kind && bytes.Equal(existing.Query, req.Query) {
		return existing, nil
	}
	req.Deadline = s.now().Add(s.timeout)
	if err := s.cache.SetDecisionRequest(ctx, req); err != nil {
		return nil, err
	}
	if err := s.cache.SetDeadline(ctx, req.GameID, req.BattleID, req.Deadline); err != nil {
		return nil, err
	}
	log.Info().Str("gameId", req.GameID).Str("battleId", req.BattleID).
		Str("kind", req.Kind).Str("nation", req.Nation).Time("deadline", req.Deadline).
		Msg("Battle waiting on player decision")
	s.broadcaster.BroadcastGameEvent(req.GameID, EventDecisionRequested, req)
	return &req, nil
}

func (s *BattleService) broadcastRun(ss *session, res *FightResult) {
	gameID := ss.game.ID
	if entries := ss.history.Drain(); len(entries) > 0 {
		s.broadcaster.BroadcastGameEvent(gameID, EventBattleStep, map[string]any{"entries": entries})
	}
	var removed []string
	for id := range ss.before {
		if ss.state.Unit(id) == nil {
			removed = append(removed, string(id))
		}
	}
	if len(removed) > 0 {
		slices.Sort(removed)
		s.broadcaster.BroadcastGameEvent(gameID, EventCasualties, map[string]any{"units": removed})
	}
	for _, rec := range res.Records {
		s.broadcaster.BroadcastGameEvent(gameID, EventBattleEnded, rec)
	}
}

// ToBattleRecords turns engine records into rows stored under the game.
func ToBattleRecords(gameID string, records []combat.Record) []model.BattleRecord {
	rows := make([]model.BattleRecord, 0, len(records))
	for _, r := range records {
		killed := make([]string, len(r.Killed))
		for i, id := range r.Killed {
			killed[i] = string(id)
		}
		rows = append(rows, model.BattleRecord{
			GameID:          gameID,
			BattleID:        string(r.BattleID),
			Kind:            string(r.Kind),
			Territory:       string(r.Territory),
			Attacker:        string(r.Attacker),
			Defender:        string(r.Defender),
			Winner:          string(r.Winner),
			Result:          string(r.Result),
			Description:     r.Description(),
			AttackerLostTUV: r.AttackerLostTUV,
			DefenderLostTUV: r.DefenderLostTUV,
			Rounds:          r.Rounds,
			Killed:          killed,
		})
	}
	return rows
}

func (s *BattleService) views(ctx context.Context, ss *session) ([]BattleView, error) {
	reqs, err := s.cache.ListDecisionRequests(ctx, ss.game.ID)
	if err != nil {
		return nil, err
	}
	byBattle := make(map[string]*model.DecisionRequest, len(reqs))
	for i := range reqs {
		byBattle[reqs[i].BattleID] = &reqs[i]
	}
	views := make([]BattleView, 0, len(ss.tracker.Battles))
	for _, b := range ss.tracker.Pending() {
		views = append(views, viewOf(ss.tracker, b, byBattle[string(b.ID)]))
	}
	return views, nil
}

func viewOf(tr *combat.Tracker, b *combat.Battle, decision *model.DecisionRequest) BattleView {
	v := BattleView{
		ID:        string(b.ID),
		Kind:      string(b.Kind),
		Territory: string(b.Territory),
		Attacker:  string(b.Attacker),
		Defender:  string(b.Defender),
		Round:     b.Round,
		MaxRounds: b.MaxRounds,
		Attacking: idStrings(b.Attacking),
		Defending: idStrings(b.Defending),
		Started:   b.Started,
		NextStep:  string(b.Pending()),
		Decision:  decision,
	}
	for _, dep := range tr.Blocking(b) {
		v.BlockedBy = append(v.BlockedBy, string(dep.ID))
	}
	v.Ready = len(v.BlockedBy) == 0
	return v
}

func idStrings(ids []combat.UnitID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// resolveAttack turns a request into an engine attack. With inPlace set
// every unit must still stand in From.
func resolveAttack(s *combat.State, req AttackRequest, inPlace bool) (combat.Attack, error) {
	from, to := combat.TerritoryID(req.From), combat.TerritoryID(req.To)
	attacker := combat.PlayerID(req.Attacker)
	if s.Territory(from) == nil {
		return combat.Attack{}, fmt.Errorf("%w: unknown territory %q", ErrInvalidAttack, req.From)
	}
	if s.Territory(to) == nil {
		return combat.Attack{}, fmt.Errorf("%w: unknown territory %q", ErrInvalidAttack, req.To)
	}
	if s.Player(attacker) == nil {
		return combat.Attack{}, fmt.Errorf("%w: unknown nation %q", ErrInvalidAttack, req.Attacker)
	}
	pick := func(ids []string) ([]*combat.Unit, error) {
		seen := make(map[string]bool, len(ids))
		units := make([]*combat.Unit, 0, len(ids))
		for _, id := range ids {
			if seen[id] {
				return nil, fmt.Errorf("%w: unit %s listed twice", ErrInvalidAttack, id)
			}
			seen[id] = true
			u := s.Unit(combat.UnitID(id))
			switch {
			case u == nil:
				return nil, fmt.Errorf("%w: unknown unit %s", ErrInvalidAttack, id)
			case u.Owner != attacker:
				return nil, fmt.Errorf("%w: unit %s belongs to %s", ErrInvalidAttack, id, u.Owner)
			case inPlace && u.Territory != from:
				return nil, fmt.Errorf("%w: unit %s is not in %s", ErrInvalidAttack, id, from)
			}
			units = append(units, u)
		}
		return units, nil
	}
	units, err := pick(req.Units)
	if err != nil {
		return combat.Attack{}, err
	}
	if len(units) == 0 {
		return combat.Attack{}, fmt.Errorf("%w: no units", ErrInvalidAttack)
	}
	bombard, err := pick(req.Bombard)
	if err != nil {
		return combat.Attack{}, err
	}
	a := combat.Attack{Attacker: attacker, From: from, To: to, Units: units, Bombarding: bombard, Bombing: req.Bombing}
	if len(req.Targets) > 0 {
		a.Targets = make(map[combat.UnitID]combat.UnitID, len(req.Targets))
		for bomber, target := range req.Targets {
			a.Targets[combat.UnitID(bomber)] = combat.UnitID(target)
		}
	}
	return a, nil
}

// registerAttack moves the attacking units into the target territory and
// adds them to its battles. Bombarding units stay where they are.
func registerAttack(s *combat.State, tr *combat.Tracker, rules *combat.Rules, a combat.Attack) (*combat.Battle, error) {
	for _, u := range a.Units {
		if u.Territory == a.To {
			continue
		}
		if err := s.Apply(combat.MoveUnits(u.Territory, a.To, []*combat.Unit{u})); err != nil {
			return nil, fmt.Errorf("move %s to %s: %w", u.ID, a.To, err)
		}
	}
	return tr.RegisterAttack(s, rules, a)
}

func requireNation(game *model.Game, userID, nation string) error {
	p := game.PlayerFor(nation)
	if p == nil || p.IsBot || p.UserID != userID {
		return ErrNotYourNation
	}
	return nil
}

// RegisterAttack orders units of the user's nation into a territory and
// returns the battle they joined.
func (s *BattleService) RegisterAttack(ctx context.Context, gameID, userID string, req AttackRequest) (*BattleView, error) {
	unlock := s.lock(gameID)
	defer unlock()

	ss, err := s.open(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := requireNation(ss.game, userID, req.Attacker); err != nil {
		return nil, err
	}
	a, err := resolveAttack(ss.state, req, true)
	if err != nil {
		return nil, err
	}
	for _, u := range a.Units {
		if b := ss.tracker.Engaged(u.ID, a.To); b != nil {
			return nil, fmt.Errorf("%w: unit %s already fights in %s", ErrInvalidAttack, u.ID, b.Territory)
		}
	}
	b, err := registerAttack(ss.state, ss.tracker, ss.rules, a)
	if err != nil {
		var ie *combat.InvariantError
		if errors.As(err, &ie) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidAttack, err)
	}
	if err := s.save(ctx, ss); err != nil {
		return nil, err
	}

	view := viewOf(ss.tracker, b, nil)
	log.Info().Str("gameId", gameID).Str("battleId", view.ID).Str("kind", view.Kind).
		Str("territory", view.Territory).Int("units", len(a.Units)).Msg("Attack registered")
	s.broadcaster.BroadcastGameEvent(gameID, EventBattleRegistered, view)
	return &view, nil
}

// FightBattle fights one battle until it ends or waits on a player.
func (s *BattleService) FightBattle(ctx context.Context, gameID, battleID string) (*FightResult, error) {
	unlock := s.lock(gameID)
	defer unlock()

	ss, err := s.open(ctx, gameID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithGameID(ctx, gameID)
	l := logger.ForBattle(ctx, battleID)
	l.Info().Msg("Fighting battle")
	return s.commit(ctx, ss, ss.tracker.Fight(ctx, ss.bridge, combat.BattleID(battleID)))
}

// FightAll fights every pending battle in dependency order, stopping at the
// first one that waits on a player.
func (s *BattleService) FightAll(ctx context.Context, gameID string) (*FightResult, error) {
	unlock := s.lock(gameID)
	defer unlock()

	ss, err := s.open(ctx, gameID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("gameId", gameID).Int("battles", len(ss.tracker.Battles)).Msg("Fighting all battles")
	return s.commit(ctx, ss, ss.tracker.FightAll(ctx, ss.bridge))
}

// PendingBattles lists the battles still to be fought with the decisions
// they wait on.
func (s *BattleService) PendingBattles(ctx context.Context, gameID string) ([]BattleView, error) {
	ss, err := s.open(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, ss)
}

// Records lists the stored outcomes of a game's finished battles.
func (s *BattleService) Records(ctx context.Context, gameID string) ([]model.BattleRecord, error) {
	return s.battleRepo.ListByGame(ctx, gameID)
}

// SubmitCasualties answers a casualty question of the user's nation and
// resumes the battle. A rejected choice comes back as a SelectionError
// together with the repeated question.
func (s *BattleService) SubmitCasualties(ctx context.Context, gameID, battleID, userID string, sel combat.CasualtyDetails) (*FightResult, error) {
	return s.submit(ctx, gameID, battleID, userID, Answer{Kind: model.DecisionCasualties, Casualties: &sel})
}

// SubmitRetreat answers a retreat question; an empty territory stays.
func (s *BattleService) SubmitRetreat(ctx context.Context, gameID, battleID, userID, territory string) (*FightResult, error) {
	return s.submit(ctx, gameID, battleID, userID, Answer{Kind: model.DecisionRetreat, Retreat: combat.TerritoryID(territory)})
}

func (s *BattleService) submit(ctx context.Context, gameID, battleID, userID string, ans Answer) (*FightResult, error) {
	unlock := s.lock(gameID)
	defer unlock()

	req, err := s.cache.GetDecisionRequest(ctx, gameID, battleID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrNoDecision
	}
	if req.Kind != ans.Kind {
		return nil, ErrWrongDecision
	}
	if req.UserID != userID {
		return nil, ErrNotYourDecision
	}
	return s.answerAndResume(ctx, *req, ans)
}

// answerAndResume stores the answer and fights the battle on. The caller
// holds the game lock.
func (s *BattleService) answerAndResume(ctx context.Context, req model.DecisionRequest, ans Answer) (*FightResult, error) {
	data, err := json.Marshal(ans)
	if err != nil {
		return nil, fmt.Errorf("encode answer: %w", err)
	}
	if err := s.cache.ClearDecision(ctx, req.GameID, req.BattleID); err != nil {
		return nil, err
	}
	if err := s.cache.SetAnswer(ctx, req.GameID, req.BattleID, data); err != nil {
		return nil, err
	}

	ss, err := s.open(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	runErr := ss.tracker.Fight(ctx, ss.bridge, combat.BattleID(req.BattleID))
	if errors.Is(runErr, combat.ErrBattleNotFound) {
		_ = s.cache.ClearDecision(ctx, req.GameID, req.BattleID)
		return nil, runErr
	}
	res, err := s.commit(ctx, ss, runErr)
	if err != nil {
		return res, err
	}
	if next := res.Decision; next != nil && next.BattleID == req.BattleID && next.Kind == req.Kind {
		var asked struct {
			LastError string `json:"last_error"`
		}
		if json.Unmarshal(next.Query, &asked) == nil && asked.LastError != "" {
			return res, &combat.SelectionError{Player: combat.PlayerID(req.Nation), Reason: asked.LastError}
		}
	}
	return res, nil
}

// DecideByDefault answers an overdue question with the default and resumes
// its battle. It does nothing when the question was answered meanwhile or
// its deadline moved.
func (s *BattleService) DecideByDefault(ctx context.Context, gameID, battleID string) (*FightResult, error) {
	unlock := s.lock(gameID)
	defer unlock()

	req, err := s.cache.GetDecisionRequest(ctx, gameID, battleID)
	if err != nil || req == nil {
		return nil, err
	}
	if s.now().Before(req.Deadline) {
		return nil, nil
	}
	ans, err := DefaultAnswer(*req)
	if err != nil {
		return nil, err
	}
	log.Info().Str("gameId", gameID).Str("battleId", battleID).Str("kind", req.Kind).
		Str("nation", req.Nation).Msg("Decision deadline passed, answering with default")
	return s.answerAndResume(ctx, *req, ans)
}

// DecideOverdue answers every question whose deadline has passed and
// returns how many were answered.
func (s *BattleService) DecideOverdue(ctx context.Context) (int, error) {
	games, err := s.cache.ListSuspendedGames(ctx)
	if err != nil {
		return 0, err
	}
	answered := 0
	for _, gameID := range games {
		reqs, err := s.cache.ListDecisionRequests(ctx, gameID)
		if err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("Failed to list decisions")
			continue
		}
		for _, req := range reqs {
			if s.now().Before(req.Deadline) {
				continue
			}
			if _, err := s.DecideByDefault(ctx, gameID, req.BattleID); err != nil {
				log.Error().Err(err).Str("gameId", gameID).Str("battleId", req.BattleID).
					Msg("Default decision failed")
				continue
			}
			answered++
		}
	}
	return answered, nil
}

// RecoverSuspended restores decision deadlines after a restart. Questions
// whose deadline passed while the server was down are answered with the
// default right away.
func (s *BattleService) RecoverSuspended(ctx context.Context) error {
	games, err := s.cache.ListSuspendedGames(ctx)
	if err != nil {
		return fmt.Errorf("list suspended games: %w", err)
	}
	if len(games) == 0 {
		log.Info().Msg("No suspended battles to recover")
		return nil
	}
	log.Info().Int("count", len(games)).Msg("Recovering suspended battles after restart")

	for _, gameID := range games {
		reqs, err := s.cache.ListDecisionRequests(ctx, gameID)
		if err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("Failed to list decisions during recovery")
			continue
		}
		for _, req := range reqs {
			if s.now().Before(req.Deadline) {
				if err := s.cache.SetDeadline(ctx, gameID, req.BattleID, req.Deadline); err != nil {
					log.Error().Err(err).Str("gameId", gameID).Str("battleId", req.BattleID).Msg("Failed to restore deadline")
				}
				continue
			}
			if _, err := s.DecideByDefault(ctx, gameID, req.BattleID); err != nil {
				log.Error().Err(err).Str("gameId", gameID).Str("battleId", req.BattleID).
					Msg("Default decision failed during recovery")
			}
		}
		log.Info().Str("gameId", gameID).Int("decisions", len(reqs)).Msg("Recovered suspended game")
	}
	return nil
}

// EndPhase closes the battle phase once every battle is fought.
func (s *BattleService) EndPhase(ctx context.Context, gameID string) error {
	unlock := s.lock(gameID)
	defer unlock()

	ss, err := s.open(ctx, gameID)
	if err != nil {
		return err
	}
	if err := ss.tracker.EndPhase(ss.bridge); err != nil {
		return err
	}
	if err := s.save(ctx, ss); err != nil {
		return err
	}
	s.broadcastRun(ss, &FightResult{})
	s.broadcaster.BroadcastGameEvent(gameID, EventPhaseEnded, nil)
	log.Info().Str("gameId", gameID).Msg("Battle phase ended")
	return nil
}

// Estimate simulates attacks on a copy of the game's board. Nothing is
// stored and no player is asked anything.
func (s *BattleService) Estimate(ctx context.Context, gameID string, req EstimateRequest) (combat.Odds, error) {
	ss, err := s.open(ctx, gameID)
	if err != nil {
		return combat.Odds{}, err
	}
	if len(req.Attacks) == 0 {
		return combat.Odds{}, fmt.Errorf("%w: no attacks", ErrInvalidAttack)
	}
	attacks := make([]combat.Attack, 0, len(req.Attacks))
	for _, ar := range req.Attacks {
		a, err := resolveAttack(ss.state, ar, false)
		if err != nil {
			return combat.Odds{}, err
		}
		attacks = append(attacks, a)
	}
	runs := req.Runs
	if runs <= 0 {
		runs = defaultEstimateRuns
	}
	runs = min(runs, maxEstimateRuns)
	seed := req.Seed
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	return combat.Estimate(ctx, ss.state, ss.rules, attacks, combat.EstimateOptions{Runs: runs, Seed: seed})
}
