// Command pgfire runs the JSON path storage engine's HTTP service,
// matching the teacher's cmd.Cmd() entry point (cmd/cmd.go) trimmed to
// the serve and version subcommands.
package main

func main() {
	Cmd()
}
