// Command ipcstat attaches to a named shmqueue channel and prints its
// connection and ring state, adapted from the teacher's
// cmd/debug-capacity diagnostic (which printed the same kind of snapshot
// for its byte-stream ring) against the broadcast queue facade.
package main

import (
	"flag"
	"fmt"
	"os"

	"code.hybscloud.com/shmqueue"
)

func main() {
	name := flag.String("name", "", "channel name to inspect")
	capacity := flag.Uint64("capacity", 1024, "ring capacity the channel was created with")
	variant := flag.String("variant", "broadcast", "broadcast|spsc|spmc|mpmc")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "ipcstat: -name is required")
		os.Exit(2)
	}

	v, err := parseVariant(*variant)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ipcstat:", err)
		os.Exit(2)
	}

	b := shmqueue.NewBuilder(*name).Variant(v).Capacity(*capacity)
	q, err := shmqueue.Open[[]byte](b)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ipcstat: open:", err)
		os.Exit(1)
	}
	defer q.Close()

	fmt.Printf("channel:    %s\n", *name)
	fmt.Printf("variant:    %s\n", v)
	fmt.Printf("capacity:   %d\n", *capacity)
	fmt.Printf("connected:  %d\n", q.ConnCount())
	fmt.Printf("empty:      %v\n", q.Empty())
}

func parseVariant(s string) (shmqueue.Variant, error) {
	switch s {
	case "broadcast":
		return shmqueue.VariantBroadcast, nil
	case "spsc":
		return shmqueue.VariantUnicastSPSC, nil
	case "spmc":
		return shmqueue.VariantUnicastSPMC, nil
	case "mpmc":
		return shmqueue.VariantUnicastMPMC, nil
	default:
		return 0, fmt.Errorf("unknown variant %q", s)
	}
}
