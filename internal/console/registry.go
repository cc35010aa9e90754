package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrExit is returned by Execute when the user asked to leave.
var ErrExit = errors.New("exit requested")

// Command defines a console command with its handler
type Command struct {
	Name        string
	ShortName   string
	Description string
	Usage       string
	Group       string
	Handler     func(ctx context.Context, c *Console, args []string) error
}

// Registry maps names and short names to commands, and remembers
// registration order per group for help output.
type Registry struct {
	commands map[string]*Command
	groups   []string
	byGroup  map[string][]*Command
}

func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		byGroup:  make(map[string][]*Command),
	}
}

func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	if cmd.ShortName != "" {
		r.commands[cmd.ShortName] = cmd
	}
	if _, ok := r.byGroup[cmd.Group]; !ok {
		r.groups = append(r.groups, cmd.Group)
	}
	r.byGroup[cmd.Group] = append(r.byGroup[cmd.Group], cmd)
}

// Lookup finds a command by name or short name.
func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names lists full command names for completion.
func (r *Registry) Names() []string {
	var names []string
	for _, g := range r.groups {
		for _, cmd := range r.byGroup[g] {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// Execute runs one input line. Handler errors are printed; only ErrExit is
// returned.
func (r *Registry) Execute(ctx context.Context, c *Console, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd, exists := r.commands[parts[0]]
	if !exists {
		fmt.Fprintf(c.out, "%s\n", c.palette.Paint(Red, "Unknown command: "+parts[0]))
		fmt.Fprintf(c.out, "Type 'help' for available commands\n")
		return nil
	}

	err := cmd.Handler(ctx, c, parts[1:])
	if errors.Is(err, ErrExit) {
		return err
	}
	if err != nil {
		fmt.Fprintf(c.out, "%s\n", c.palette.Paint(Red, "Error: "+err.Error()))
	}
	return nil
}

func (r *Registry) help(c *Console, args []string) error {
	p := c.palette

	if len(args) > 0 {
		cmd, exists := r.commands[args[0]]
		if !exists {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		fmt.Fprintf(c.out, "\n%s - %s\n", p.Paint(Cyan, cmd.Name), cmd.Description)
		if cmd.ShortName != "" {
			fmt.Fprintf(c.out, "Short form: %s\n", p.Paint(Cyan, cmd.ShortName))
		}
		fmt.Fprintf(c.out, "Usage: %s\n", cmd.Usage)
		return nil
	}

	fmt.Fprintf(c.out, "\n%s\n\n", p.Paint(Cyan, "Available Commands:"))
	for i, g := range r.groups {
		if i > 0 {
			fmt.Fprintln(c.out)
		}
		fmt.Fprintf(c.out, "%s\n", p.Paint(Yellow, g+":"))
		for _, cmd := range r.byGroup[g] {
			short := ""
			if cmd.ShortName != "" {
				short = "[" + p.Paint(Cyan, cmd.ShortName) + "] "
			}
			fmt.Fprintf(c.out, "  %s%-10s %s\n", short, cmd.Name, cmd.Description)
		}
	}
	fmt.Fprintf(c.out, "\nType 'help <command>' for detailed usage\n")
	return nil
}
