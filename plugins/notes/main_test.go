package main

import (
	"strings"
	"testing"
	"time"

	"github.com/ayusman/facegift/internal/plugin"
)

func TestCompose(t *testing.T) {
	now := time.Date(2026, 4, 9, 16, 30, 0, 0, time.UTC)
	req := plugin.Request{
		Action:     "workflow",
		Trigger:    "voice",
		Command:    "follow up on the demo",
		Person:     &plugin.Person{ID: "person_002", Name: "Grace Hopper", Summary: "Rear admiral."},
		Transcript: "workflow follow up on the demo",
	}

	title, body := compose(req, now)
	if title != "Grace Hopper: follow up on the demo" {
		t.Errorf("title = %q", title)
	}
	for _, want := range []string{"2026-04-09 16:30", "via voice", "Rear admiral.", "Transcript:\nworkflow follow up"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	title, _ = compose(plugin.Request{Trigger: "snap"}, now)
	if title != "Face Gift note" {
		t.Errorf("default title = %q", title)
	}
}

func TestScriptEscapes(t *testing.T) {
	got := script(`say "hi"`, `a\b`)
	if !strings.Contains(got, `name:"say \"hi\""`) || !strings.Contains(got, `body:"a\\b"`) {
		t.Errorf("script() = %s", got)
	}
}
