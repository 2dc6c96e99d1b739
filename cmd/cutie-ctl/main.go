package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cutie/internal/ipc"
)

var (
	socketPath string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "cutie-ctl",
	Short:        "Control a running cutie-daemon",
	SilenceUsage: true,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Listen for one spoken query",
	Args:  cobra.NoArgs,
	RunE:  send("listen"),
}

var sayCmd = &cobra.Command{
	Use:   "say <service> <text...>",
	Short: "Speak text on behalf of a service",
	Args:  cobra.MinimumNArgs(2),
	RunE:  send("say"),
}

var queryCmd = &cobra.Command{
	Use:   "query <text...>",
	Short: "Handle a typed query as if it were spoken",
	Args:  cobra.MinimumNArgs(1),
	RunE:  send("query"),
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tracked tasks",
	Args:  cobra.NoArgs,
	RunE:  send("tasks"),
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List loaded plugins and their support verdicts",
	Args:  cobra.NoArgs,
	RunE:  send("plugins"),
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe an audio file (wav, mp3, ogg)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return send("transcribe")(cmd, []string{abs})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", ipc.DefaultSocketPath, "Daemon socket path")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 2*time.Minute, "How long to wait for the daemon")

	rootCmd.AddCommand(listenCmd, sayCmd, queryCmd, tasksCmd, pluginsCmd, transcribeCmd)
}

func send(name string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		reply, err := ipc.Send(socketPath, ipc.Request{Cmd: name, Args: args}, timeout)
		if err != nil {
			return fmt.Errorf("cutie-daemon not running: %w", err)
		}
		if !reply.OK {
			return fmt.Errorf("%s", reply.Error)
		}
		for _, line := range reply.Lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
