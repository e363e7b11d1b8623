// Command notes is a workflow plugin that files the spoken command and
// transcript as a new note in the macOS Notes app.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ayusman/facegift/internal/plugin"
)

func main() {
	var req plugin.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		reply(plugin.Response{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	switch req.Action {
	case "workflow", "note":
	default:
		reply(plugin.Response{Error: "unknown action: " + req.Action})
		return
	}

	title, body := compose(req, time.Now())
	if out, err := exec.Command("osascript", "-e", script(title, body)).CombinedOutput(); err != nil {
		reply(plugin.Response{Error: fmt.Sprintf("osascript: %v: %s", err, strings.TrimSpace(string(out)))})
		return
	}

	data, _ := json.Marshal(map[string]string{"title": title})
	reply(plugin.Response{Success: true, Data: data})
}

func compose(req plugin.Request, now time.Time) (title, body string) {
	title = req.Command
	if title == "" {
		title = "Face Gift note"
	}
	if req.Person != nil && req.Person.Name != "" {
		title = req.Person.Name + ": " + title
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Captured %s via %s\n", now.Format("2006-01-02 15:04"), req.Trigger)
	if req.Person != nil && req.Person.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", req.Person.Summary)
	}
	if req.Transcript != "" {
		fmt.Fprintf(&b, "\nTranscript:\n%s\n", req.Transcript)
	}
	return title, b.String()
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func script(title, body string) string {
	return fmt.Sprintf(`tell application "Notes" to make new note with properties {name:"%s", body:"%s"}`,
		escaper.Replace(title), escaper.Replace(body))
}

func reply(resp plugin.Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
