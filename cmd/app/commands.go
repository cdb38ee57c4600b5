package main

import (
	"github.com/urfave/cli/v3"
)

func getCommands(version string) []*cli.Command {
	cmds := []*cli.Command{}
	cmds = append(cmds, getSystemCommands(version)...)
	cmds = append(cmds, getKeyCommands()...)
	cmds = append(cmds, getTransitCommands()...)
	cmds = append(cmds, getDatabaseCommands()...)
	return cmds
}

// unsealShareFlag is shared by every command that operates on wrapped state.
func unsealShareFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "unseal-share",
		Aliases: []string{"u"},
		Usage:   "Unseal share (repeat up to the threshold); omit to use KMS auto-unseal",
	}
}
