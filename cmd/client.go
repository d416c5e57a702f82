package cmd

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/luma/ninep/client"
	"github.com/luma/ninep/internal/env"
	"github.com/luma/ninep/protocol"
)

var clientFlags struct {
	addr    string
	msize   uint32
	uname   string
	timeout time.Duration
}

func init() {
	for _, cmd := range []*cobra.Command{LsCmd, CatCmd, PutCmd} {
		flags := cmd.PersistentFlags()

		flags.StringVar(&clientFlags.addr, "addr",
			net.JoinHostPort("127.0.0.1", strconv.Itoa(env.DefaultPort)), "The 9P server to connect to")
		flags.Uint32Var(&clientFlags.msize, "msize", protocol.DefaultMsize, "The msize to offer the server")
		flags.StringVar(&clientFlags.uname, "uname", "none", "The user name to attach as")
		flags.DurationVar(&clientFlags.timeout, "timeout", 10*time.Second, "How long to wait for the server")
	}
}

var LsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/"
		if len(args) == 1 {
			path = args[0]
		}

		return withClient(func(ctx context.Context, c *client.Conn) error {
			st, err := c.Stat(ctx, path)
			if err != nil {
				return err
			}

			stats := []protocol.Stat{st}
			if st.Mode.IsDir() {
				if stats, err = c.ReadDir(ctx, path); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, st := range stats {
				fmt.Fprintf(out, "%s %s %8d %s\n", formatMode(st.Mode), st.Uid, st.Length, st.Name)
			}

			return nil
		})
	},
}

var CatCmd = &cobra.Command{
	Use:   "cat path...",
	Short: "Print the contents of files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Conn) error {
			for _, path := range args {
				data, err := c.ReadFile(ctx, path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}

				if _, err := cmd.OutOrStdout().Write(data); err != nil {
					return err
				}
			}

			return nil
		})
	},
}

var PutCmd = &cobra.Command{
	Use:   "put path",
	Short: "Replace the contents of a file with stdin, creating it if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := ioutil.ReadAll(io.LimitReader(cmd.InOrStdin(), 64*1024*1024))
		if err != nil {
			return err
		}

		return withClient(func(ctx context.Context, c *client.Conn) error {
			return c.WriteFile(ctx, args[0], data)
		})
	},
}

func withClient(fn func(ctx context.Context, c *client.Conn) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), clientFlags.timeout)
	defer cancel()

	c, err := client.Dial(ctx, clientFlags.addr, client.Options{
		Msize: clientFlags.msize,
		Uname: clientFlags.uname,
	})
	if err != nil {
		return err
	}
	defer c.Disconnect() // nolint:errcheck

	return fn(ctx, c)
}

// formatMode renders mode like ls(1), with a leading d for directories.
func formatMode(mode protocol.FileMode) string {
	const rwx = "rwxrwxrwx"

	buf := []byte("----------")
	if mode.IsDir() {
		buf[0] = 'd'
	}

	for i := 0; i < 9; i++ {
		if mode&(1<<uint(8-i)) != 0 {
			buf[i+1] = rwx[i]
		}
	}

	return string(buf)
}
