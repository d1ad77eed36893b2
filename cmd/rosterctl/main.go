package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/example/rosterd/pkg/rosterapi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "topology":
		runTopology(os.Args[2:])
	case "assign":
		runAssign(os.Args[2:])
	case "release":
		runRelease(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "extend":
		runExtend(os.Args[2:])
	case "start":
		runStart(os.Args[2:])
	case "end":
		runEnd(os.Args[2:])
	case "audit":
		runAudit(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rosterctl <topology|assign|release|status|extend|start|end|audit> [...]")
}

func serverFlag(fs *flag.FlagSet) *string {
	return fs.String("server", envOr("ROSTERD_SERVER", "http://127.0.0.1:8080"), "rosterd base URL")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func runTopology(args []string) {
	fs := flag.NewFlagSet("topology", flag.ExitOnError)
	server := serverFlag(fs)
	_ = fs.Parse(args)
	doGet(*server + "/v1/topology")
}

func runAssign(args []string) {
	fs := flag.NewFlagSet("assign", flag.ExitOnError)
	server := serverFlag(fs)
	line := fs.String("line", "", "line id")
	shift := fs.String("shift", "DAY", "shift type (DAY|NIGHT)")
	slot := fs.Int("slot", 0, "slot index")
	worker := fs.String("worker", "", "worker id")
	force := fs.Bool("force", false, "reassign even if the worker is placed elsewhere")
	actor := fs.String("actor", "", "acting manager id")
	_ = fs.Parse(args)
	if *line == "" || *worker == "" {
		fatalf("assign requires -line and -worker")
	}
	doPost(slotURL(*server, *line, *shift, *slot, "assign"), rosterapi.AssignWorkerRequest{
		WorkerID: *worker,
		Force:    *force,
		Actor:    *actor,
	})
}

func runRelease(args []string) {
	fs := flag.NewFlagSet("release", flag.ExitOnError)
	server := serverFlag(fs)
	line := fs.String("line", "", "line id")
	shift := fs.String("shift", "DAY", "shift type (DAY|NIGHT)")
	slot := fs.Int("slot", 0, "slot index")
	actor := fs.String("actor", "", "acting manager id")
	_ = fs.Parse(args)
	if *line == "" {
		fatalf("release requires -line")
	}
	doPost(slotURL(*server, *line, *shift, *slot, "release"), rosterapi.ReleaseSlotRequest{Actor: *actor})
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := serverFlag(fs)
	line := fs.String("line", "", "line id")
	shift := fs.String("shift", "DAY", "shift type (DAY|NIGHT)")
	slot := fs.Int("slot", 0, "slot index")
	status := fs.String("set", "NORMAL", "worker status (NORMAL|OVERTIME)")
	actor := fs.String("actor", "", "acting manager id")
	_ = fs.Parse(args)
	if *line == "" {
		fatalf("status requires -line")
	}
	doPost(slotURL(*server, *line, *shift, *slot, "status"), rosterapi.UpdateStatusRequest{Status: *status, Actor: *actor})
}

func runExtend(args []string) {
	fs := flag.NewFlagSet("extend", flag.ExitOnError)
	server := serverFlag(fs)
	line := fs.String("line", "", "line id")
	shift := fs.String("shift", "DAY", "shift type (DAY|NIGHT)")
	extended := fs.Bool("extended", true, "extended flag value")
	actor := fs.String("actor", "", "acting manager id")
	_ = fs.Parse(args)
	if *line == "" {
		fatalf("extend requires -line")
	}
	url := fmt.Sprintf("%s/v1/lines/%s/shifts/%s/extended", *server, *line, strings.ToUpper(*shift))
	doPost(url, rosterapi.SetExtendedRequest{Extended: *extended, Actor: *actor})
}

func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	server := serverFlag(fs)
	worker := fs.String("worker", "", "worker id")
	line := fs.String("line", "", "line id")
	shift := fs.String("shift", "DAY", "shift type (DAY|NIGHT)")
	slot := fs.Int("slot", 0, "slot index")
	startedAt := fs.String("at", "", "RFC3339 start time (default now)")
	_ = fs.Parse(args)
	if *worker == "" || *line == "" {
		fatalf("start requires -worker and -line")
	}
	doPost(*server+"/v1/worklogs", rosterapi.StartSessionRequest{
		WorkerID:  *worker,
		LineID:    *line,
		ShiftType: strings.ToUpper(*shift),
		SlotIndex: *slot,
		StartedAt: *startedAt,
	})
}

func runEnd(args []string) {
	fs := flag.NewFlagSet("end", flag.ExitOnError)
	server := serverFlag(fs)
	session := fs.String("session", "", "session id")
	endedAt := fs.String("at", "", "RFC3339 end time (default now)")
	_ = fs.Parse(args)
	if *session == "" {
		fatalf("end requires -session")
	}
	doPost(*server+"/v1/worklogs/"+*session+"/end", rosterapi.EndSessionRequest{EndedAt: *endedAt})
}

func runAudit(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	server := serverFlag(fs)
	action := fs.String("action", "", "filter by action")
	actor := fs.String("actor", "", "filter by actor")
	limit := fs.Int("limit", 50, "max events")
	format := fs.String("format", "", "json or csv")
	_ = fs.Parse(args)
	url := fmt.Sprintf("%s/v1/admin/audit?limit=%d", *server, *limit)
	if *action != "" {
		url += "&action=" + *action
	}
	if *actor != "" {
		url += "&actor=" + *actor
	}
	if *format != "" {
		url += "&format=" + *format
	}
	doGet(url)
}

func slotURL(server, line, shift string, slot int, action string) string {
	return fmt.Sprintf("%s/v1/lines/%s/shifts/%s/slots/%d/%s", server, line, strings.ToUpper(shift), slot, action)
}

func doGet(url string) {
	resp, err := http.Get(url)
	if err != nil {
		fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	dump(resp)
}

func doPost(url string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		fatalf("encode request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	dump(resp)
}

func dump(resp *http.Response) {
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "HTTP %d\n%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
		os.Exit(1)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(strings.TrimSpace(string(body)))
		return
	}
	fmt.Println(pretty.String())
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
