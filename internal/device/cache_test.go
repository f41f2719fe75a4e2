package device

import "testing"

func TestCache_ApplyReplacesSnapshot(t *testing.T) {
	c := NewCache()
	c.Put(Descriptor{ID: 5, Type: "com.fibaro.binarySwitch", Properties: ParseProperties(map[string]any{"value": false})})

	before, _ := c.Get(5)
	after := c.Apply(5, map[string]any{"value": true})

	if v, _ := before.Properties.Raw.Get("value"); v != false {
		t.Errorf("old snapshot changed: %v", v)
	}
	if v, _ := after.Properties.Raw.Get("value"); v != true {
		t.Errorf("new snapshot value = %v", v)
	}
	if after.Type != "com.fibaro.binarySwitch" {
		t.Errorf("Type lost: %q", after.Type)
	}
}

func TestCache_ApplyUnknownDevice(t *testing.T) {
	c := NewCache()
	d := c.Apply(9, map[string]any{"value": "12"})
	if d.ID != 9 || c.Len() != 1 {
		t.Errorf("Apply on unknown id = %+v, len %d", d, c.Len())
	}
}

func TestCache_SetDeadTransitions(t *testing.T) {
	c := NewCache()
	c.Put(Descriptor{ID: 1, Properties: ParseProperties(nil)})

	steps := []struct {
		dead    bool
		changed bool
	}{
		{false, false},
		{true, true},
		{true, false},
		{false, true},
	}
	for i, s := range steps {
		if got := c.SetDead(1, s.dead); got != s.changed {
			t.Errorf("step %d: SetDead(%v) = %v, want %v", i, s.dead, got, s.changed)
		}
		if c.IsDead(1) != s.dead {
			t.Errorf("step %d: IsDead = %v", i, c.IsDead(1))
		}
	}
}

func TestCache_AllSorted(t *testing.T) {
	c := NewCache()
	for _, id := range []int{30, 10, 20} {
		c.Put(Descriptor{ID: id})
	}
	all := c.All()
	if len(all) != 3 || all[0].ID != 10 || all[2].ID != 30 {
		t.Errorf("All() = %+v", all)
	}
}
