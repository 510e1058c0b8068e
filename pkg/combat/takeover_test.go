package combat

import (
	"testing"
)

func TestTakeOver_CapitalIsLooted(t *testing.T) {
	s := testBoard()
	factory := s.Place(moscow, "factory", russia, 1)[0]
	tanks := s.Place(moscow, "tank", germany, 2)
	br := NewBridge(s, DefaultRules(), nil)
	tr := NewTracker()

	if err := tr.TakeOver(br, moscow, germany, tanks); err != nil {
		t.Fatalf("TakeOver: %v", err)
	}
	if got := s.Territory(moscow).Owner; got != germany {
		t.Errorf("expected Germany to own Moscow, got %s", got)
	}
	if got := s.Player(russia).Resources; got != 0 {
		t.Errorf("expected Russia stripped of resources, got %d", got)
	}
	if got := s.Player(germany).Resources; got != 50 {
		t.Errorf("expected Germany to collect 20, got %d", got)
	}
	if factory.Owner != germany {
		t.Error("expected the factory to change hands")
	}
	for _, u := range tanks {
		if !u.WasInCombat {
			t.Error("arriving units should be marked as having fought")
		}
	}
}

func TestTakeOver_SecondCapitalKeepsResources(t *testing.T) {
	s := testBoard()
	s.Territory(belorussia).CapitalOf = russia
	rules := DefaultRules()
	br := NewBridge(s, rules, nil)
	if err := NewTracker().TakeOver(br, moscow, germany, s.Place(moscow, "tank", germany, 1)); err != nil {
		t.Fatalf("TakeOver: %v", err)
	}
	if got := s.Player(russia).Resources; got != 20 {
		t.Errorf("Russia still holds a capital and keeps 20, got %d", got)
	}

	// demanding two held capitals makes the loss of one enough
	s = testBoard()
	s.Territory(belorussia).CapitalOf = russia
	br = NewBridge(s, rules.With(RuleRetainCapitalCount, 2), nil)
	if err := NewTracker().TakeOver(br, moscow, germany, s.Place(moscow, "tank", germany, 1)); err != nil {
		t.Fatalf("TakeOver: %v", err)
	}
	if got := s.Player(russia).Resources; got != 0 {
		t.Errorf("expected Russia looted, got %d", got)
	}
}

func TestTakeOver_Liberation(t *testing.T) {
	tests := []struct {
		name        string
		moscowOwner PlayerID
		want        PlayerID
	}{
		{"capital held returns to original owner", russia, russia},
		{"capital lost stays with liberator", germany, britain},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := testBoard()
			s.Territory(belorussia).Owner = germany
			s.Territory(moscow).Owner = tc.moscowOwner
			br := NewBridge(s, DefaultRules(), nil)
			if err := NewTracker().TakeOver(br, belorussia, britain, s.Place(belorussia, "tank", britain, 1)); err != nil {
				t.Fatalf("TakeOver: %v", err)
			}
			if got := s.Territory(belorussia).Owner; got != tc.want {
				t.Errorf("expected %s to own Belorussia, got %s", tc.want, got)
			}
		})
	}
}

func TestTakeOver_FreedCapitalRestoresTerritories(t *testing.T) {
	s := testBoard()
	s.Territory(moscow).Owner = germany
	s.Territory(belorussia).Owner = britain
	br := NewBridge(s, DefaultRules(), nil)
	if err := NewTracker().TakeOver(br, moscow, britain, s.Place(moscow, "infantry", britain, 1)); err != nil {
		t.Fatalf("TakeOver: %v", err)
	}
	if got := s.Territory(moscow).Owner; got != russia {
		t.Errorf("expected Moscow back with Russia, got %s", got)
	}
	if got := s.Territory(belorussia).Owner; got != russia {
		t.Errorf("expected Belorussia returned with the capital, got %s", got)
	}
	if got := s.Player(germany).Resources; got != 30 {
		t.Errorf("losing a captured capital costs nothing, got %d", got)
	}
}

func TestTakeOver_PlanesAloneTakeNothing(t *testing.T) {
	s := testBoard()
	br := NewBridge(s, DefaultRules(), nil)
	if err := NewTracker().TakeOver(br, belorussia, germany, s.Place(belorussia, "fighter", germany, 1)); err != nil {
		t.Fatalf("TakeOver: %v", err)
	}
	if got := s.Territory(belorussia).Owner; got != russia {
		t.Errorf("planes cannot hold land, got owner %s", got)
	}
}

func TestTakeOver_ConvoyZone(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		want PlayerID
	}{
		{"warship takes the zone", "destroyer", germany},
		{"transport cannot", "transport", russia},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := testBoard()
			zone := s.Territory(baltic)
			zone.Owner = russia
			zone.ConvoyFor = []TerritoryID{belorussia}
			br := NewBridge(s, DefaultRules(), nil)
			if err := NewTracker().TakeOver(br, baltic, germany, s.Place(baltic, tc.typ, germany, 1)); err != nil {
				t.Fatalf("TakeOver: %v", err)
			}
			if zone.Owner != tc.want {
				t.Errorf("expected %s to hold the zone, got %s", tc.want, zone.Owner)
			}
		})
	}
}

func TestTakeOver_OrdinarySeaZoneHasNoOwner(t *testing.T) {
	s := testBoard()
	br := NewBridge(s, DefaultRules(), nil)
	if err := NewTracker().TakeOver(br, karelianSZ, germany, s.Place(karelianSZ, "destroyer", germany, 1)); err != nil {
		t.Fatalf("TakeOver: %v", err)
	}
	if owner := s.Territory(karelianSZ).Owner; owner != "" {
		t.Errorf("expected no owner, got %s", owner)
	}
}
