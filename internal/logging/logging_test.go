package logging

import "testing"

func TestNew(t *testing.T) {
	for _, env := range []string{"development", "production", ""} {
		t.Run(env, func(t *testing.T) {
			l, err := New(env)
			if err != nil {
				t.Fatalf("New(%q) failed: %v", env, err)
			}
			if l == nil {
				t.Fatal("logger should not be nil")
			}
			l.Infof("hello %s", "world")
		})
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) should return a logger")
	}

	l := Nop()
	if OrNop(l) != l {
		t.Error("OrNop should return the given logger")
	}
}
