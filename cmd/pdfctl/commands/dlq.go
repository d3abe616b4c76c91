package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdfme/pdf-pipeline/pkg/app"
	"github.com/pdfme/pdf-pipeline/pkg/rabbitmq"
)

var replayLimit int

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay the dead-letter queue",
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Move dead-lettered requests back to the processing queue with a fresh retry budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayLimit < 1 {
			return fmt.Errorf("--limit must be positive")
		}

		closer := &app.Closer{}
		defer closer.Close(log)

		conn, err := rabbitmq.Connect(cfg.Broker.URL, log)
		if err != nil {
			return err
		}
		closer.AddCloser(conn)

		topo := app.Topology(cfg)
		producer, err := rabbitmq.NewProducer(conn, topo, log)
		if err != nil {
			return err
		}
		closer.AddCloser(producer)

		n, err := rabbitmq.ReplayDeadLetters(cmd.Context(), conn, topo, producer, replayLimit, log)
		if err != nil {
			printError(cmd.OutOrStdout(), "replay stopped after %d messages: %v", n, err)
			return err
		}
		printSuccess(cmd.OutOrStdout(), "replayed %d messages from %s", n, topo.DeadLetterQueue())
		return nil
	},
}

func init() {
	dlqReplayCmd.Flags().IntVar(&replayLimit, "limit", 100, "maximum number of messages to replay")
	dlqCmd.AddCommand(dlqReplayCmd)
}
