package client

import (
	"errors"
	"fmt"
	"os"

	transports "github.com/rzbill/rawdata/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// newMetaCommand constructs the `meta` command group.
func newMetaCommand(open openFunc) *cobra.Command {
	metaCmd := &cobra.Command{Use: "meta", Short: "Topic metadata operations"}
	metaCmd.PersistentFlags().StringP("topic", "t", "", "Topic")

	topicOf := func(cmd *cobra.Command) (string, error) {
		topic, _ := cmd.Flags().GetString("topic")
		if topic == "" {
			return "", errors.New("--topic is required")
		}
		return topic, nil
	}

	getCmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Write a metadata value to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, err := topicOf(cmd)
			if err != nil {
				return err
			}
			return withTransport(cmd, open, func(t transports.Transport) error {
				v, err := t.MetaGet(commandContext(cmd), topic, args[0])
				if errors.Is(err, transports.ErrNotFound) {
					return fmt.Errorf("key %q not found", args[0])
				}
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(v)
				return err
			})
		},
	}

	putCmd := &cobra.Command{
		Use:   "put KEY",
		Short: "Store a metadata value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, err := topicOf(cmd)
			if err != nil {
				return err
			}
			value, _ := cmd.Flags().GetString("value")
			file, _ := cmd.Flags().GetString("value-file")
			v := []byte(value)
			if file != "" {
				if v, err = os.ReadFile(file); err != nil {
					return err
				}
			}
			return withTransport(cmd, open, func(t transports.Transport) error {
				return t.MetaPut(commandContext(cmd), topic, args[0], v)
			})
		},
	}
	putCmd.Flags().String("value", "", "Value as a string")
	putCmd.Flags().String("value-file", "", "Read the value from a file")

	rmCmd := &cobra.Command{
		Use:   "rm KEY",
		Short: "Remove a metadata key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, err := topicOf(cmd)
			if err != nil {
				return err
			}
			return withTransport(cmd, open, func(t transports.Transport) error {
				return t.MetaRemove(commandContext(cmd), topic, args[0])
			})
		},
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List metadata keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			topic, err := topicOf(cmd)
			if err != nil {
				return err
			}
			return withTransport(cmd, open, func(t transports.Transport) error {
				keys, err := t.MetaKeys(commandContext(cmd), topic)
				if err != nil {
					return err
				}
				for _, k := range keys {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), k); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	metaCmd.AddCommand(getCmd, putCmd, rmCmd, lsCmd)
	return metaCmd
}
