package card

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestBuildMainDeck(t *testing.T) {
	deck := BuildMainDeck(rand.New(rand.NewSource(1)))
	if len(deck) != MainDeckSize {
		t.Fatalf("deck size = %d, want %d", len(deck), MainDeckSize)
	}
	counts := map[int]int{}
	ids := map[string]bool{}
	for _, c := range deck {
		if !c.IsMainDeck {
			t.Fatalf("card %s not flagged as main deck", c.ID)
		}
		if ids[c.ID] {
			t.Fatalf("duplicate id %s", c.ID)
		}
		ids[c.ID] = true
		counts[c.Value]++
	}
	for v := 1; v <= 10; v++ {
		if counts[v] != 4 {
			t.Fatalf("value %d appears %d times, want 4", v, counts[v])
		}
	}
}

func TestBuildMainDeckDeterministicWithSeed(t *testing.T) {
	a := BuildMainDeck(rand.New(rand.NewSource(42)))
	b := BuildMainDeck(rand.New(rand.NewSource(42)))
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed should produce the same order")
	}
	c := BuildMainDeck(rand.New(rand.NewSource(43)))
	if reflect.DeepEqual(a, c) {
		t.Fatal("different seeds produced the same order")
	}
}

func TestBuildSideCardPoolComposition(t *testing.T) {
	pool := BuildSideCardPool()
	if len(pool) != SidePoolSize {
		t.Fatalf("pool size = %d, want %d", len(pool), SidePoolSize)
	}

	perVariant := map[Variant]int{}
	perValue := map[Variant]map[int]int{}
	for _, sc := range pool {
		perVariant[sc.Variant]++
		if perValue[sc.Variant] == nil {
			perValue[sc.Variant] = map[int]int{}
		}
		perValue[sc.Variant][sc.Value]++
		if sc.IsUsed {
			t.Fatalf("fresh card %s marked used", sc.ID)
		}
	}

	wantVariant := map[Variant]int{
		Positive: 12, Negative: 12, Dual: 12,
		Flip24: 2, Flip36: 2, Double: 1, Tiebreaker: 1, Variable: 1,
	}
	if !reflect.DeepEqual(perVariant, wantVariant) {
		t.Fatalf("variant counts = %v, want %v", perVariant, wantVariant)
	}
	for v := 1; v <= 6; v++ {
		if perValue[Positive][v] != 2 {
			t.Fatalf("positive %d count = %d, want 2", v, perValue[Positive][v])
		}
		if perValue[Negative][-v] != 2 {
			t.Fatalf("negative %d count = %d, want 2", v, perValue[Negative][-v])
		}
		if perValue[Dual][v] != 2 {
			t.Fatalf("dual %d count = %d, want 2", v, perValue[Dual][v])
		}
	}
}

func TestBuildSideCardPoolSpecials(t *testing.T) {
	for _, sc := range BuildSideCardPool() {
		switch sc.Variant {
		case Variable:
			if sc.AlternateValue != 2 {
				t.Fatalf("variable alternate value = %d, want 2", sc.AlternateValue)
			}
		case Flip24:
			if !reflect.DeepEqual(sc.FlipTargets, []int{2, 4}) {
				t.Fatalf("flip_2_4 targets = %v", sc.FlipTargets)
			}
		case Flip36:
			if !reflect.DeepEqual(sc.FlipTargets, []int{3, 6}) {
				t.Fatalf("flip_3_6 targets = %v", sc.FlipTargets)
			}
		}
	}
}

func TestBuildSideCardPoolStableIDs(t *testing.T) {
	a := BuildSideCardPool()
	b := BuildSideCardPool()
	if !reflect.DeepEqual(a, b) {
		t.Fatal("pools built twice differ")
	}
	if a[0].ID != "side-00" || a[42].ID != "side-42" {
		t.Fatalf("unexpected ids %s .. %s", a[0].ID, a[42].ID)
	}
	// duplicates of the same value+variant still get distinct ids
	if a[0].Value != a[6].Value || a[0].Variant != a[6].Variant || a[0].ID == a[6].ID {
		t.Fatalf("expected distinct ids for duplicate cards: %+v %+v", a[0], a[6])
	}
}

func TestSample(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	got := Sample(rng, items, 4)
	if len(got) != 4 {
		t.Fatalf("sample size = %d, want 4", len(got))
	}
	seen := map[int]bool{}
	for _, v := range got {
		if seen[v] {
			t.Fatalf("duplicate %d in sample", v)
		}
		seen[v] = true
	}
	if !reflect.DeepEqual(items, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}) {
		t.Fatal("Sample modified its input")
	}
	if len(Sample(rng, items, 20)) != 10 {
		t.Fatal("oversized sample should return every item")
	}
}

func TestSideCardClone(t *testing.T) {
	sc := SideCard{ID: "x", Variant: Flip24, FlipTargets: []int{2, 4}}
	cp := sc.Clone()
	cp.FlipTargets[0] = 9
	if sc.FlipTargets[0] != 2 {
		t.Fatal("clone shares flip targets")
	}
}
