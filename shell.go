package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/shlex"
)

const shellHelp = `commands:
  status                      wifi status and local ip
  ip                          local ip
  read <token> <pin>          read a blynk pin
  write <token> <pin> <value> write a blynk pin
  time                        fetch the module time
  verify                      fetch the module time and compare with ntp
  servers                     blynk servers in the order they are tried
  help                        this text
  quit                        leave the console
`

// Shell is a line-oriented console on top of the gateway. Arguments are
// split with shell quoting rules, so values may contain spaces.
type Shell struct {
	Gateway *Gateway
	Logger  *slog.Logger
	In      io.Reader
	Out     io.Writer
}

// Run reads commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.In)
	s.prompt()
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		args, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(s.Out, "error: %v\n", err)
			s.prompt()
			continue
		}
		if len(args) > 0 {
			if args[0] == "quit" || args[0] == "exit" {
				return nil
			}
			if err := s.exec(ctx, args); err != nil {
				s.Logger.Debug("shell command failed", "command", args[0], "error", err)
				fmt.Fprintf(s.Out, "error: %v\n", err)
			}
		}
		s.prompt()
	}
	return scanner.Err()
}

func (s *Shell) prompt() {
	fmt.Fprint(s.Out, "esp> ")
}

func (s *Shell) exec(ctx context.Context, args []string) error {
	switch cmd, rest := args[0], args[1:]; cmd {
	case "help":
		fmt.Fprint(s.Out, shellHelp)

	case "status":
		info := s.Gateway.Wifi(ctx)
		fmt.Fprintf(s.Out, "wifi: %s\n", info.Status)
		if info.IP != "" {
			fmt.Fprintf(s.Out, "ip: %s\n", info.IP)
		}

	case "ip":
		info := s.Gateway.Wifi(ctx)
		if info.IP == "" {
			return fmt.Errorf("no address (wifi %s)", info.Status)
		}
		fmt.Fprintln(s.Out, info.IP)

	case "read":
		if len(rest) != 2 {
			return fmt.Errorf("usage: read <token> <pin>")
		}
		value, err := s.Gateway.ReadPin(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(s.Out, value)

	case "write":
		if len(rest) != 3 {
			return fmt.Errorf("usage: write <token> <pin> <value>")
		}
		if err := s.Gateway.WritePin(ctx, rest[0], rest[1], rest[2]); err != nil {
			return err
		}
		fmt.Fprintln(s.Out, "ok")

	case "time", "verify":
		info, err := s.Gateway.Time(ctx, cmd == "verify")
		if err != nil {
			return err
		}
		fmt.Fprintf(s.Out, "%s (weekday %d)\n", info.Time.Format("2006-01-02 15:04:05 -07:00"), info.Record.Weekday)
		if info.Offset != nil {
			fmt.Fprintf(s.Out, "offset: %v\n", *info.Offset)
		}

	case "servers":
		fmt.Fprintln(s.Out, strings.Join(s.Gateway.Servers(), "\n"))

	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}
