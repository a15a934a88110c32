// cmd/chronosctl is the CLI entry-point built with Cobra.
//
// Usage:
//
//	chronosctl create --interval 1000 --repeat-for 5000 \
//	                   --callback-uri http://sink/cb --callback-opaque hello \
//	                   --server http://localhost:8080
//	chronosctl get <hex-id>             --server http://localhost:8080
//	chronosctl delete <hex-id>          --server http://localhost:8080
//	chronosctl cluster nodes            --server http://localhost:8080
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chronos/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "chronosctl",
		Short: "CLI client for a chronos timer cluster",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "chronos node address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(createCmd(), getCmd(), deleteCmd(), pingCmd(), clusterCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── create ───────────────────────────────────────────────────────────────────

func createCmd() *cobra.Command {
	var (
		intervalMS        int64
		repeatForMS       int64
		startDeltaMS      int64
		callbackURI       string
		callbackOpaque    string
		replicationFactor int
		replicas          []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := client.CreateRequest{
				IntervalMS:        intervalMS,
				RepeatForMS:       repeatForMS,
				CallbackURI:       callbackURI,
				CallbackOpaque:    callbackOpaque,
				ReplicationFactor: replicationFactor,
				Replicas:          replicas,
			}
			if cmd.Flags().Changed("start-delta") {
				req.StartTimeDeltaMS = &startDeltaMS
			}

			c := client.New(serverAddr, timeout)
			loc, err := c.Create(context.Background(), req)
			if err != nil {
				return err
			}
			fmt.Println(loc)
			return nil
		},
	}

	cmd.Flags().Int64Var(&intervalMS, "interval", 0, "milliseconds between pops (required)")
	cmd.Flags().Int64Var(&repeatForMS, "repeat-for", 0, "milliseconds the timer may keep popping (0 = one-shot)")
	cmd.Flags().Int64Var(&startDeltaMS, "start-delta", 0, "milliseconds from now to the timer's start time (the first pop comes one interval later)")
	cmd.Flags().StringVar(&callbackURI, "callback-uri", "", "URL the pop callback POSTs to (required)")
	cmd.Flags().StringVar(&callbackOpaque, "callback-opaque", "", "opaque body sent with the pop callback (required)")
	cmd.Flags().IntVar(&replicationFactor, "replication-factor", 0, "desired replica count (0 = server default)")
	cmd.Flags().StringSliceVar(&replicas, "replicas", nil, "explicit replica addresses (overrides replication-factor)")
	cmd.MarkFlagRequired("interval")
	cmd.MarkFlagRequired("callback-uri")
	cmd.MarkFlagRequired("callback-opaque")

	return cmd
}

// ─── get ──────────────────────────────────────────────────────────────────────

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <hex-id>",
		Short: "Fetch a timer's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			t, err := c.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			prettyPrint(t)
			return nil
		},
	}
}

// ─── delete ───────────────────────────────────────────────────────────────────

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <hex-id>",
		Short: "Tombstone a timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			if err := c.Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

// ─── ping ─────────────────────────────────────────────────────────────────────

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that a node is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			if err := c.Ping(context.Background()); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
}

// ─── cluster ──────────────────────────────────────────────────────────────────

func clusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster inspection commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "nodes",
		Short: "List every node in the node's current topology snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.GetRaw(context.Background(), "/cluster/nodes")
			if err != nil {
				return err
			}
			fmt.Println(resp)
			return nil
		},
	})

	return cmd
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
