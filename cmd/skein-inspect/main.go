// skein-inspect is a read-mostly CLI for poking at a skein database without
// going through the daemon.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/skeinhq/skein/internal/store"
)

func main() {
	dataDir := os.Getenv("SKEIN_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	db, err := store.Open(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database in %s: %v\n", dataDir, err)
		os.Exit(1)
	}
	defer db.Close()

	cmd := os.Args[1]
	user := os.Getenv("SKEIN_USER")
	if user == "" {
		user = "default"
	}

	switch cmd {
	case "stats":
		handleStats(db)
	case "dumps":
		handleDumps(db, user)
	case "threads":
		handleThreads(db, user, os.Args[2:])
	case "thread":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: skein-inspect thread <id>")
			os.Exit(1)
		}
		handleThread(db, user, os.Args[2])
	case "clear":
		handleClear(db, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`skein-inspect - Inspect a skein database

Usage: skein-inspect <command> [options]

Commands:
  stats                Row counts per table
  dumps                List recent dumps with status
  threads              List threads by recency
  threads --state=X    Filter by lifecycle state
  thread <id>          Show one thread with segments and edges
  clear --yes          Wipe all data

Environment:
  SKEIN_DATA_DIR       Database directory (default ./data)
  SKEIN_USER           User scope (default "default")`)
}

func handleStats(db *store.DB) {
	stats, err := db.Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats: %v\n", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-16s %d\n", name, stats[name])
	}
}

func handleDumps(db *store.DB, user string) {
	dumps, err := db.ListDumps(user, 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dumps: %v\n", err)
		os.Exit(1)
	}
	if len(dumps) == 0 {
		fmt.Println("No dumps.")
		return
	}
	for _, d := range dumps {
		fmt.Printf("%s  %-10s  %s  %s\n",
			d.ID, d.Status, d.CreatedAt.Format(time.DateTime), oneLine(d.Content, 60))
	}
}

func handleThreads(db *store.DB, user string, args []string) {
	var state store.ThreadState
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--state="); ok {
			state = store.ThreadState(v)
		}
	}
	if state != "" && !state.Valid() {
		fmt.Fprintf(os.Stderr, "Unknown state: %s\n", state)
		os.Exit(1)
	}

	threads, err := db.ListThreads(user, state)
	if err != nil {
		fmt.Fprintf(os.Stderr, "threads: %v\n", err)
		os.Exit(1)
	}
	if len(threads) == 0 {
		fmt.Println("No threads.")
		return
	}
	for _, th := range threads {
		fmt.Printf("%s  %-8s  %-9s  %2d seg  score %2d  %s\n",
			th.ID, th.State, th.Momentum, th.SegmentCount, th.RealityScore, oneLine(th.Title, 50))
	}
}

func handleThread(db *store.DB, user, id string) {
	th, err := db.GetThread(id, user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "thread: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Thread:   %s\n", th.ID)
	fmt.Printf("Title:    %s\n", th.Title)
	fmt.Printf("State:    %s (%s)\n", th.State, th.StateReason)
	fmt.Printf("Momentum: %s, reality score %d/10\n", th.Momentum, th.RealityScore)
	if th.Summary != "" {
		fmt.Printf("Summary:  %s\n", th.Summary)
	}
	if th.GroundingNote != "" {
		fmt.Printf("Note:     %s\n", th.GroundingNote)
	}
	fmt.Printf("Activity: %s (%d segments)\n", th.LastActivityAt.Format(time.DateTime), th.SegmentCount)

	segments, err := db.SegmentsForThread(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "segments: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\nSegments:")
	for _, seg := range segments {
		fmt.Printf("  [%s] (%s, %.2f) %s\n",
			seg.CreatedAt.Format(time.DateOnly), seg.Type, seg.Confidence, oneLine(seg.Content, 70))
	}

	connected, err := db.ConnectedEdges(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "edges: %v\n", err)
		os.Exit(1)
	}
	if len(connected) > 0 {
		fmt.Println("\nEdges:")
		for _, e := range connected {
			fmt.Printf("  %.2f  %s  (%s)\n", e.Strength, oneLine(e.ConnectedTitle, 50), e.Reason)
		}
	}
}

func handleClear(db *store.DB, args []string) {
	confirmed := false
	for _, arg := range args {
		if arg == "--yes" {
			confirmed = true
		}
	}
	if !confirmed {
		fmt.Fprintln(os.Stderr, "clear wipes ALL data; pass --yes to confirm")
		os.Exit(1)
	}
	if err := db.Clear(); err != nil {
		fmt.Fprintf(os.Stderr, "clear: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Cleared.")
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
