package client

import (
	"errors"
	"fmt"
	"os"
	"time"

	transports "github.com/rzbill/rawdata/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// newPublishCommand constructs the `publish` subcommand.
func newPublishCommand(open openFunc) *cobra.Command {
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one message to a topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			position, _ := cmd.Flags().GetString("position")
			data, _ := cmd.Flags().GetString("data")
			dataFile, _ := cmd.Flags().GetString("data-file")
			group, _ := cmd.Flags().GetString("ordering-group")
			seq, _ := cmd.Flags().GetUint64("sequence")
			rawAttrs, _ := cmd.Flags().GetStringArray("attr")
			attrsJSON, _ := cmd.Flags().GetString("attr-json")
			if topic == "" || position == "" {
				return errors.New("--topic and --position are required")
			}
			attrs, err := parseAttrs(rawAttrs, attrsJSON)
			if err != nil {
				return err
			}
			switch {
			case dataFile != "":
				b, err := os.ReadFile(dataFile)
				if err != nil {
					return err
				}
				attrs["payload"] = b
			case data != "":
				attrs["payload"] = []byte(data)
			}
			msg := transports.Message{Position: position, OrderingGroup: group, Sequence: seq, Attributes: attrs}
			return withTransport(cmd, open, func(t transports.Transport) error {
				ids, err := t.Publish(commandContext(cmd), topic, []transports.Message{msg})
				if err != nil {
					return err
				}
				return encodeJSON(cmd, map[string]any{"topic": topic, "ids": ids}, false)
			})
		},
	}
	publishCmd.Flags().StringP("topic", "t", "", "Topic")
	publishCmd.Flags().String("position", "", "Producer-assigned position")
	publishCmd.Flags().String("data", "", "Payload attribute as a string")
	publishCmd.Flags().String("data-file", "", "Read the payload attribute from a file")
	publishCmd.Flags().String("ordering-group", "", "Ordering group")
	publishCmd.Flags().Uint64("sequence", 0, "Sequence number within the ordering group")
	publishCmd.Flags().StringArray("attr", nil, "Attribute key=value (repeatable)")
	publishCmd.Flags().String("attr-json", "", "Attributes as a JSON object of strings")
	return publishCmd
}

// newTailCommand constructs the `tail` subcommand.
func newTailCommand(open openFunc) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print messages of a topic as JSON lines, following new ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			cursor, _ := cmd.Flags().GetString("cursor")
			position, _ := cmd.Flags().GetString("position")
			inclusive, _ := cmd.Flags().GetBool("inclusive")
			at, _ := cmd.Flags().GetString("at")
			limit, _ := cmd.Flags().GetInt("limit")
			expr, _ := cmd.Flags().GetString("filter")
			if topic == "" {
				return errors.New("--topic is required")
			}
			atMs, err := parseAt(at)
			if err != nil {
				return err
			}
			req := transports.TailRequest{
				Topic:     topic,
				Cursor:    cursor,
				Position:  position,
				Inclusive: inclusive,
				AtMs:      atMs,
				Limit:     limit,
				Filter:    expr,
			}
			return withTransport(cmd, open, func(t transports.Transport) error {
				return t.Tail(commandContext(cmd), req, func(m transports.Message) error {
					return encodeJSON(cmd, decodedMessage(m), false)
				})
			})
		},
	}
	tailCmd.Flags().StringP("topic", "t", "", "Topic")
	tailCmd.Flags().String("cursor", "", "Start at a message ID (ULID)")
	tailCmd.Flags().String("position", "", "Start at a message position")
	tailCmd.Flags().Bool("inclusive", false, "Include the start message")
	tailCmd.Flags().String("at", "", "Start at timestamp: RFC3339 or ms")
	tailCmd.Flags().Int("limit", 0, "Stop after N messages (0 = infinite)")
	tailCmd.Flags().String("filter", "", "CEL filter expression")
	return tailCmd
}

// newLastCommand constructs the `last` subcommand.
func newLastCommand(open openFunc) *cobra.Command {
	lastCmd := &cobra.Command{
		Use:   "last",
		Short: "Print the last message of a topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			if topic == "" {
				return errors.New("--topic is required")
			}
			return withTransport(cmd, open, func(t transports.Transport) error {
				m, err := t.Last(commandContext(cmd), topic)
				if errors.Is(err, transports.ErrNotFound) {
					return fmt.Errorf("topic %q is empty", topic)
				}
				if err != nil {
					return err
				}
				return encodeJSON(cmd, decodedMessage(m), true)
			})
		},
	}
	lastCmd.Flags().StringP("topic", "t", "", "Topic")
	return lastCmd
}

// newCursorCommand constructs the `cursor` subcommand.
func newCursorCommand(open openFunc) *cobra.Command {
	cursorCmd := &cobra.Command{
		Use:   "cursor",
		Short: "Resolve a position to a cursor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			position, _ := cmd.Flags().GetString("position")
			inclusive, _ := cmd.Flags().GetBool("inclusive")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			if topic == "" || position == "" {
				return errors.New("--topic and --position are required")
			}
			req := transports.CursorRequest{Topic: topic, Position: position, Inclusive: inclusive, Timeout: timeout}
			return withTransport(cmd, open, func(t transports.Transport) error {
				c, err := t.Cursor(commandContext(cmd), req)
				if errors.Is(err, transports.ErrNotFound) {
					return fmt.Errorf("position %q not found in %q", position, topic)
				}
				if err != nil {
					return err
				}
				return encodeJSON(cmd, c, false)
			})
		},
	}
	cursorCmd.Flags().StringP("topic", "t", "", "Topic")
	cursorCmd.Flags().String("position", "", "Message position")
	cursorCmd.Flags().Bool("inclusive", false, "Cursor includes the message itself")
	cursorCmd.Flags().Duration("timeout", 5*time.Second, "How long to scan before giving up")
	return cursorCmd
}
