package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayusman/facegift/internal/amount"
	"github.com/ayusman/facegift/internal/gesture"
	"github.com/ayusman/facegift/internal/personinfo"
	"github.com/ayusman/facegift/internal/plugin"
	"github.com/ayusman/facegift/internal/tasks"
	"github.com/ayusman/facegift/internal/transcript"
)

// Task kinds submitted by the app.
const (
	KindPayment  = "payment"
	KindMessage  = "message"
	KindWorkflow = "workflow"
)

type paymentJob struct {
	PersonID string `json:"person_id"`
	// Speech is the transcript the amount is parsed from.
	Speech string `json:"speech"`
}

type messageJob struct {
	Text string `json:"text"`
}

type workflowJob struct {
	Trigger    string         `json:"trigger"`
	Command    string         `json:"command"`
	Transcript string         `json:"transcript"`
	Person     *plugin.Person `json:"person,omitempty"`
}

// onGesture turns a fired gesture into a background job.
func (a *App) onGesture(ev gesture.Event) {
	switch ev.Type {
	case gesture.TypeSnap:
		if a.c.Payments == nil {
			a.log.Info("snap detected, payments are not configured")
			return
		}
		person, _ := a.Focused()
		speech := a.c.Transcript.Recent(a.config.AmountLookback)
		a.submit(KindPayment, KindPayment+":"+person.Key(), paymentJob{PersonID: person.ID, Speech: speech})

	case gesture.TypePeace:
		if a.c.Messages == nil {
			a.log.Info("peace sign detected, iMessage is not configured")
			return
		}
		text := a.c.Transcript.Recent(a.c.Messages.Lookback())
		if strings.TrimSpace(text) == "" {
			a.log.Info("peace sign detected, nothing was said to send")
			return
		}
		a.submit(KindMessage, KindMessage+":peace", messageJob{Text: text})
	}
}

func (a *App) handlePayment(ctx context.Context, job tasks.Job) error {
	var p paymentJob
	if err := job.Decode(&p); err != nil {
		return err
	}

	sui, src, err := a.resolveAmount(ctx, p.Speech)
	if err != nil {
		a.log.Warnf("skipping payment: %v", err)
		a.publish("payment", map[string]any{"status": "skipped", "error": err.Error()})
		return nil
	}
	a.log.Infof("sending %g SUI (amount from %s)", sui, src)

	tx, err := a.c.Payments.Send(ctx, p.PersonID, sui)
	event := map[string]any{"amount": sui, "person_id": p.PersonID}
	if tx != nil {
		event["id"], event["digest"], event["explorer_url"] = tx.ID, tx.Digest, tx.ExplorerURL
	}
	if err != nil {
		event["status"], event["error"] = "failed", err.Error()
		a.publish("payment", event)
		return fmt.Errorf("send gift: %w", err)
	}
	event["status"] = "success"
	a.publish("payment", event)
	return nil
}

func (a *App) resolveAmount(ctx context.Context, speech string) (float64, string, error) {
	if a.c.Amounts == nil {
		return 0, "", errors.New("no amount parser configured")
	}
	sui, src, err := a.c.Amounts.Resolve(ctx, speech)
	if src == amount.SourceNone {
		return sui, "default", err
	}
	return sui, string(src), err
}

func (a *App) handleMessage(ctx context.Context, job tasks.Job) error {
	var m messageJob
	if err := job.Decode(&m); err != nil {
		return err
	}
	if err := a.c.Messages.SendTranscript(ctx, m.Text); err != nil {
		a.publish("message", map[string]any{"status": "failed", "error": err.Error()})
		return fmt.Errorf("send imessage: %w", err)
	}
	a.publish("message", map[string]any{"status": "sent", "length": len(m.Text)})
	return nil
}

func (a *App) handleWorkflow(ctx context.Context, job tasks.Job) error {
	var w workflowJob
	if err := job.Decode(&w); err != nil {
		return err
	}

	p, err := a.workflowPlugin()
	if err != nil {
		return err
	}
	resp, err := a.c.Executor.Execute(ctx, p, &plugin.Request{
		Action:     KindWorkflow,
		Trigger:    w.Trigger,
		Command:    w.Command,
		Person:     w.Person,
		Transcript: w.Transcript,
	})
	if err == nil && !resp.Success {
		err = errors.New(resp.Error)
	}
	if err != nil {
		a.publish("workflow", map[string]any{"status": "failed", "command": w.Command, "error": err.Error()})
		return fmt.Errorf("run %s: %w", p.Manifest.Name, err)
	}
	a.log.Infof("workflow %q handled by %s", w.Command, p.Manifest.Name)
	a.publish("workflow", map[string]any{"status": "done", "command": w.Command, "plugin": p.Manifest.Name, "data": resp.Data})
	return nil
}

// workflowPlugin returns the configured plugin, or the first one that
// handles workflows.
func (a *App) workflowPlugin() (*plugin.Plugin, error) {
	if a.c.Plugins == nil || a.c.Executor == nil {
		return nil, errors.New("workflow plugins are not configured")
	}
	if name := a.config.WorkflowPlugin; name != "" {
		if p, err := a.c.Plugins.Get(name); err == nil && p.Supports(KindWorkflow) {
			return p, nil
		}
	}
	return a.c.Plugins.ForAction(KindWorkflow)
}

// runTranscriptChecker scans new transcript segments for the workflow
// keyword.
func (a *App) runTranscriptChecker(ctx context.Context) {
	ticker := time.NewTicker(a.config.TranscriptCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.checkTranscript(now)
		}
	}
}

// checkTranscript submits a workflow job when the keyword and a command
// appear in segments heard within the keyword window.
func (a *App) checkTranscript(now time.Time) bool {
	segs := a.c.Transcript.Unprocessed()
	if len(segs) == 0 || !a.IsEnabled() {
		return false
	}

	text := joinSince(segs, now.Add(-a.keyword.Window()))
	if text == "" || !a.keyword.Detect(text) {
		return false
	}
	cmd, ok := a.keyword.Command(text)
	if !ok {
		a.log.Infof("heard %q with no command", a.keyword.Word())
		return false
	}

	w := workflowJob{Trigger: "voice", Command: cmd, Transcript: text}
	if person, ok := a.Focused(); ok {
		w.Person = a.pluginPerson(person)
	}
	a.submit(KindWorkflow, KindWorkflow+":"+cmd, w)
	return true
}

func joinSince(segs []transcript.Segment, cutoff time.Time) string {
	var parts []string
	for _, s := range segs {
		if s.Timestamp.Before(cutoff) {
			continue
		}
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

func (a *App) pluginPerson(p Person) *plugin.Person {
	out := &plugin.Person{ID: p.ID, Name: p.Name}
	if p.ID == "" {
		return out
	}
	if info, ok := a.personInfo(p.ID); ok {
		if info.FullName != "" {
			out.Name = info.FullName
		}
		out.Summary = info.Summary
	}
	out.ImageURL = "/api/faces/" + p.ID + "/image"
	return out
}

// SetPersonInfo records info entered by hand for a tracked face. With a
// lookup service it also replaces the cached answer and stops the lookup.
func (a *App) SetPersonInfo(info personinfo.Info) error {
	if a.c.People != nil {
		return a.c.People.Set(info)
	}
	return a.c.Tracker.StorePersonInfo(info.PersonID, info)
}

// personInfo returns completed info for id from the lookup cache, falling
// back to what the tracker has stored.
func (a *App) personInfo(id string) (personinfo.Info, bool) {
	var info personinfo.Info
	ok := false
	if a.c.People != nil {
		info, ok = a.c.People.Cached(id)
	}
	if !ok {
		if raw, found := a.c.Tracker.PersonInfo(id); found {
			ok = json.Unmarshal(raw, &info) == nil
		}
	}
	if !ok || info.Status != personinfo.StatusCompleted {
		return personinfo.Info{}, false
	}
	return info, true
}
