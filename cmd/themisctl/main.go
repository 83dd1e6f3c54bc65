// Command themisctl is a demo CLI exercising the transaction coordinator
// against the in-process mockclient backing store, useful for manually
// driving put/get/commit sequences without a real deployment. Command
// layout follows the cobra.Command / RunE convention used throughout
// cockroachdb's cli package in the retrieved corpus.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pingcap/themis-go/client"
	"github.com/pingcap/themis-go/clock"
	"github.com/pingcap/themis-go/column"
	"github.com/pingcap/themis-go/logutil"
	"github.com/pingcap/themis-go/lockcleaner"
	"github.com/pingcap/themis-go/mockclient"
	"github.com/pingcap/themis-go/oracle"
	"github.com/pingcap/themis-go/registry"
	"github.com/pingcap/themis-go/txn"
)

// session holds the demo's shared, process-lifetime collaborators, wired
// once at startup the way a real deployment would wire a long-lived
// coordinator client.
type session struct {
	opts txn.Options
}

func newSession() *session {
	cp := mockclient.New()
	reg := registry.New()
	clk := clock.System{}
	cleaner := lockcleaner.New(cp, clk, reg)
	return &session{opts: txn.Options{
		Client:   cp,
		Oracle:   oracle.NewLocal(),
		Clock:    clk,
		Registry: reg,
		Cleaner:  cleaner,
	}}
}

func main() {
	logger, _ := zap.NewDevelopment()
	logutil.InitLogger(logger)

	sess := newSession()

	root := &cobra.Command{
		Use:   "themisctl",
		Short: "Drive a themis-go transaction coordinator from the command line",
	}

	root.AddCommand(putCmd(sess), getCmd(sess), demoCmd(sess))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func putCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "put <table> <row> <family> <qualifier> <value>",
		Short: "Put a single column in its own committed transaction",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			tx, err := txn.Begin(ctx, sess.opts)
			if err != nil {
				return err
			}
			kv := column.KeyValue{Family: []byte(args[2]), Qualifier: []byte(args[3]), Value: []byte(args[4])}
			if err := tx.Put(args[0], []byte(args[1]), []column.KeyValue{kv}); err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return err
			}
			fmt.Printf("committed at startTs=%d commitTs=%d\n", tx.StartTS(), tx.CommitTS())
			return nil
		},
	}
}

func getCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <row> <family> <qualifier>",
		Short: "Read a single column at a fresh snapshot",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			tx, err := txn.Begin(ctx, sess.opts)
			if err != nil {
				return err
			}
			coord := column.Coordinate{Family: []byte(args[2]), Qualifier: []byte(args[3])}
			res, err := tx.Get(ctx, args[0], &client.Get{Row: []byte(args[1]), Columns: []column.Coordinate{coord}})
			if err != nil {
				return err
			}
			if len(res.Cells) == 0 {
				fmt.Println("<no value>")
				return nil
			}
			fmt.Printf("%s @ %d\n", res.Cells[0].Value, res.Cells[0].Timestamp)
			return nil
		},
	}
}

func demoCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted cross-row transaction and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			tx, err := txn.Begin(ctx, sess.opts)
			if err != nil {
				return err
			}
			if err := tx.Put("accounts", []byte("alice"), []column.KeyValue{{Family: []byte("cf"), Qualifier: []byte("balance"), Value: []byte("90")}}); err != nil {
				return err
			}
			if err := tx.Put("accounts", []byte("bob"), []column.KeyValue{{Family: []byte("cf"), Qualifier: []byte("balance"), Value: []byte("110")}}); err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return err
			}
			fmt.Printf("transferred: startTs=%d commitTs=%d rollbacks=%d\n", tx.StartTS(), tx.CommitTS(), tx.RollbackCount())
			return nil
		},
	}
}
