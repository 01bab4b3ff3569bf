package tui

import "testing"

func TestIsTUISupported(t *testing.T) {
	cases := map[string]bool{
		"engine_state":         true,
		"engine_state_verbose": true,
		"inspect_run":          false,
		"":                     false,
	}
	for viewType, want := range cases {
		if got := IsTUISupported(viewType); got != want {
			t.Errorf("IsTUISupported(%q) = %v, want %v", viewType, got, want)
		}
	}
}

func TestRunRejectsUnsupportedViewType(t *testing.T) {
	if err := Run("inspect_run", nil); err == nil {
		t.Fatal("expected error for unsupported view type")
	}
}

func TestRunRejectsWrongDataType(t *testing.T) {
	if err := Run("engine_state", "not an EngineStats"); err == nil {
		t.Fatal("expected error for data not implementing EngineStats")
	}
}

func TestSupportedTUIViews(t *testing.T) {
	views := SupportedTUIViews()
	if len(views) != 1 || views[0] != "engine_state" {
		t.Errorf("SupportedTUIViews = %v, want [engine_state]", views)
	}
}
