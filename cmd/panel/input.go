package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Action is a parsed panel command
type Action int

const (
	ActionNone Action = iota
	ActionPlus
	ActionMinus
	ActionSet
	ActionSubmit
	ActionLight
	ActionRefresh
	ActionWake
	ActionQuit
)

// Command is one line of user input
type Command struct {
	Action Action
	Text   string // set: the raw value typed into the adjust box
	Light  int    // light: mood index
}

var errUsage = errors.New("commands: + - set <n> submit light <i> refresh wake quit")

// ParseCommand turns a line of input into a Command. Blank lines yield ActionNone.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{Action: ActionNone}, nil
	}

	switch strings.ToLower(fields[0]) {
	case "+", "plus", "up":
		return Command{Action: ActionPlus}, nil
	case "-", "minus", "down":
		return Command{Action: ActionMinus}, nil
	case "set":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("set needs one value: %w", errUsage)
		}
		return Command{Action: ActionSet, Text: fields[1]}, nil
	case "submit", "s":
		return Command{Action: ActionSubmit}, nil
	case "light", "l":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("light needs one index: %w", errUsage)
		}
		i, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, fmt.Errorf("invalid light index %q: %w", fields[1], errUsage)
		}
		return Command{Action: ActionLight, Light: i}, nil
	case "refresh", "r":
		return Command{Action: ActionRefresh}, nil
	case "wake":
		return Command{Action: ActionWake}, nil
	case "quit", "exit", "q":
		return Command{Action: ActionQuit}, nil
	}
	return Command{}, fmt.Errorf("unknown command %q: %w", fields[0], errUsage)
}

// readCommands parses lines from r and hands each command to handle until
// input ends or handle returns false
func readCommands(r io.Reader, handle func(Command) bool, onError func(error)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, err := ParseCommand(scanner.Text())
		if err != nil {
			onError(err)
			continue
		}
		if cmd.Action == ActionNone {
			continue
		}
		if !handle(cmd) {
			return nil
		}
	}
	return scanner.Err()
}
