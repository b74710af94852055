// Command admin settles competition periods through the gateway's RPC
// endpoint.
//
// Usage:
//
//	admin -addr localhost:8081 -type daily [-period 2025-06-01]
//
// Omitting -period settles the most recently closed period of the given
// type. Exit code 0 on success (including an already-settled period),
// 1 on failure, 2 on bad usage.
package main

import (
	"flag"
	"fmt"
	"net/rpc"
	"os"

	voble_rpc "github.com/voblegame/voble/rpc"
)

func main() {
	addr := flag.String("addr", "localhost:8081", "gateway RPC address")
	periodType := flag.String("type", "", "period type: daily, weekly or monthly")
	periodID := flag.String("period", "", "period id, e.g. 2025-06-01; defaults to the last closed period")
	flag.Parse()

	if *periodType == "" {
		fmt.Fprintln(os.Stderr, "missing required flag: -type")
		flag.Usage()
		os.Exit(2)
	}

	client, err := rpc.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer client.Close()

	args := &voble_rpc.SettleArgs{
		PeriodType: *periodType,
		PeriodID:   *periodID,
	}
	var reply voble_rpc.SettleReply
	if err := client.Call("SettlementService.Settle", args, &reply); err != nil {
		fmt.Fprintf(os.Stderr, "settlement failed: %v\n", err)
		os.Exit(1)
	}

	if reply.AlreadyFinalized {
		fmt.Printf("warning: period %s/%s was already finalized\n", reply.PeriodType, reply.PeriodID)
	}
	fmt.Printf("settled %s/%s\n", reply.PeriodType, reply.PeriodID)
	fmt.Printf("  participants: %d\n", reply.TotalParticipants)
	fmt.Printf("  prize pool:   %d\n", reply.PrizePool)
	for i, w := range reply.Winners {
		amount := uint64(0)
		if i < len(reply.Amounts) {
			amount = reply.Amounts[i]
		}
		fmt.Printf("  rank %d: %s  amount %d\n", i+1, w, amount)
	}
}
