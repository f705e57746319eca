package commands

import (
	"context"

	"github.com/dyluth/grove/internal/printer"
	"github.com/dyluth/grove/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	sendPayload   string
	sendRequestID uint32
	sendFailed    bool
)

var sendCmd = &cobra.Command{
	Use:   "send TYPE",
	Short: "Send a message to a running agent",
	Long: `Publish a message on the agent's message channel. Tasks waiting for a
message of TYPE finish on the agent's next tick: succeeded by default,
failed with --failed.

A request id of 0 reaches every observer of TYPE; any other id reaches
only the observer registered for that request.

Examples:
  grove send path_found --agent courier-1 --payload west
  grove send path_found -a courier-1 --id 7 --failed`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendPayload, "payload", "p", "", "Message payload")
	sendCmd.Flags().Uint32Var(&sendRequestID, "id", 0, "Request id (0 matches any observer)")
	sendCmd.Flags().BoolVar(&sendFailed, "failed", false, "Mark the message as failed")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, name, err := targetAgent(ctx, "send")
	if err != nil {
		return err
	}
	defer client.Close()

	msg := &blackboard.AgentMessage{
		Type:      args[0],
		RequestID: sendRequestID,
		Success:   !sendFailed,
		Payload:   sendPayload,
	}
	if err := client.PublishMessage(ctx, msg); err != nil {
		return printer.Error("failed to send message", err.Error(), nil)
	}

	result := "succeeded"
	if sendFailed {
		result = "failed"
	}
	printer.Success("Sent %s message '%s' to %s\n", result, msg.Type, name)
	if msg.Payload != "" {
		printer.Info("  Payload: %s\n", msg.Payload)
	}
	if msg.RequestID != 0 {
		printer.Info("  Request: %d\n", msg.RequestID)
	}
	return nil
}
