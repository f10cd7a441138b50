package app

import (
	"errors"
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。引数なしの既定値。
	CommandServe Command = "serve"
	// CommandWorker は予約配信とセッション掃除のワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate は未適用のマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はローカルの /health を叩いて終了する。distrolessイメージ用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// ErrUnknownCommand は未知のサブコマンドが渡された場合のエラー。
var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand は先頭の引数からサブコマンドを決める。2つ目以降の引数は見ない。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || args[0] == "" {
		return CommandServe, nil
	}
	for _, c := range commands {
		if args[0] == string(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w %q (available: %s)", ErrUnknownCommand, args[0], commandNames())
}

// NeedsDatabase はサブコマンドがDATABASE_URLを使うかを返す。
func (c Command) NeedsDatabase() bool {
	return c != CommandHealthcheck
}

func commandNames() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
