// Command clipboard is a workflow plugin that copies the spoken command,
// or the transcript when there is no command, to the macOS clipboard.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ayusman/facegift/internal/plugin"
)

func main() {
	var req plugin.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		reply(plugin.Response{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}
	if req.Action != "workflow" && req.Action != "copy" {
		reply(plugin.Response{Error: "unknown action: " + req.Action})
		return
	}

	text := strings.TrimSpace(req.Command)
	if text == "" {
		text = strings.TrimSpace(req.Transcript)
	}
	if text == "" {
		reply(plugin.Response{Error: "nothing to copy"})
		return
	}

	cmd := exec.Command("pbcopy")
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		reply(plugin.Response{Error: fmt.Sprintf("pbcopy: %v: %s", err, strings.TrimSpace(string(out)))})
		return
	}

	data, _ := json.Marshal(map[string]int{"copied": len(text)})
	reply(plugin.Response{Success: true, Data: data})
}

func reply(resp plugin.Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
