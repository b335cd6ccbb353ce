// Journal reader: lists recorded runs and prints the events of one run as
// JSON lines.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"AcademyBot/internal/journal"
	"AcademyBot/internal/parser"
	"AcademyBot/internal/util"
)

func main() {
	util.SetupLogger("journal", os.Stderr)

	path := flag.String("db", "data/journal.db", "journal database")
	run := flag.String("run", "", "run id to print, latest when empty")
	list := flag.Bool("list", false, "list runs and exit")
	flag.Parse()

	j, err := journal.OpenReadOnly(*path)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	defer func() {
		if err := j.Close(); err != nil {
			log.Printf("warning: close journal: %v", err)
		}
	}()

	recorded, err := j.Runs()
	if err != nil {
		log.Fatalf("list runs: %v", err)
	}

	if *list {
		for _, r := range recorded {
			fmt.Printf("%s  %s\n", r.Started.Format("2006-01-02 15:04:05"), r.ID)
		}
		return
	}

	id := *run
	if id == "" {
		if len(recorded) == 0 {
			log.Fatalf("no runs in %s", *path)
		}
		id = recorded[len(recorded)-1].ID
	}
	events, err := j.Events(id)
	if err != nil {
		log.Fatalf("run %s: %v", id, err)
	}
	codec := parser.NewJSONParser()
	for _, e := range events {
		b, err := codec.EncodeEvent(e)
		if err != nil {
			log.Printf("warning: encode event: %v", err)
			continue
		}
		fmt.Println(string(b))
	}
}
